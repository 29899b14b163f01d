package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletOwnerType identifies who a wallet belongs to.
type WalletOwnerType string

const (
	WalletOwnerDriver   WalletOwnerType = "driver"
	WalletOwnerMerchant WalletOwnerType = "merchant"
)

// Wallet holds a Nova balance. Balance is only ever written in the same
// database transaction as a ledger row insert, so it always equals the
// signed sum of the wallet's transactions.
type Wallet struct {
	ID                uuid.UUID       `json:"id"`
	OwnerType         WalletOwnerType `json:"owner_type"`
	OwnerID           uuid.UUID       `json:"owner_id"`
	BalanceCents      int64           `json:"balance_cents"`
	PassToken         string          `json:"-"` // opaque, unique; serial-number suffix for the wallet pass
	PassSecretEnc     string          `json:"-"` // AES-encrypted per-pass authentication secret
	ChargingActive    bool            `json:"charging_active"` // advisory, does not gate ledger ops
	ChargingStartedAt *time.Time      `json:"charging_started_at,omitempty"`
	LastActivityAt    time.Time       `json:"last_activity_at"` // monotonically non-decreasing, bumped by every mutation
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SerialNumber derives the wallet-pass serial number from the pass token.
func (w *Wallet) SerialNumber(prefix string) string {
	return prefix + w.PassToken
}
