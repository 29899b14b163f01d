package domain

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus is the lifecycle state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusActive    MerchantStatus = "ACTIVE"
	MerchantStatusSuspended MerchantStatus = "SUSPENDED"
)

// Merchant is a business that grants Nova discounts to drivers.
type Merchant struct {
	ID                uuid.UUID      `json:"id"`
	Name              string         `json:"name"`
	PerkAmountCents   int64          `json:"perk_amount_cents"` // max Nova a single redemption may spend
	APISecretHash     string         `json:"-"`                 // argon2id hash of the merchant API secret
	ProcessorCredsEnc *string        `json:"-"`                 // AES-encrypted OAuth credentials, nil if not connected
	Status            MerchantStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsActive reports whether the merchant may redeem.
func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}

// HasProcessor reports whether the merchant has payment-processor
// credentials on file for order-total verification.
func (m *Merchant) HasProcessor() bool {
	return m.ProcessorCredsEnc != nil && *m.ProcessorCredsEnc != ""
}
