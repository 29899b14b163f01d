package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind is the closed set of ledger movements. Amounts are always
// positive magnitudes; direction is implied by kind and resolved in exactly
// one place (Sign).
type TransactionKind string

const (
	KindDriverEarn    TransactionKind = "driver_earn"
	KindDriverRedeem  TransactionKind = "driver_redeem"
	KindMerchantEarn  TransactionKind = "merchant_earn"
	KindMerchantTopup TransactionKind = "merchant_topup"
	KindAdminGrant    TransactionKind = "admin_grant"
)

// Sign returns +1 for credits and -1 for debits against the owning wallet.
func (k TransactionKind) Sign() int64 {
	switch k {
	case KindDriverRedeem:
		return -1
	default:
		return 1
	}
}

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindDriverEarn, KindDriverRedeem, KindMerchantEarn, KindMerchantTopup, KindAdminGrant:
		return true
	}
	return false
}

// Transaction is an immutable, append-only ledger entry. Corrections are new
// offsetting transactions, never updates.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	Kind         TransactionKind `json:"kind"`
	WalletID     uuid.UUID       `json:"wallet_id"`
	MerchantID   *uuid.UUID      `json:"merchant_id,omitempty"`
	AmountCents  int64           `json:"amount_cents"` // positive magnitude
	SessionID    *string         `json:"session_id,omitempty"`
	EventID      *string         `json:"event_id,omitempty"`
	RedemptionID *uuid.UUID      `json:"redemption_id,omitempty"`
	Metadata     *string         `json:"metadata,omitempty"` // free-form JSON
	CreatedAt    time.Time       `json:"created_at"`
}

// SignedAmount is the balance delta this entry contributed.
func (t *Transaction) SignedAmount() int64 {
	return t.Kind.Sign() * t.AmountCents
}
