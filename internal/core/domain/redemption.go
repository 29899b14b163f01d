package domain

import (
	"time"

	"github.com/google/uuid"
)

// Redemption records one successful driver-to-merchant spend. The pair
// (merchant_id, external_order_id) is unique when the external id is present;
// that constraint is the sole defense against redeeming the same purchase
// twice.
type Redemption struct {
	ID              uuid.UUID `json:"id"`
	MerchantID      uuid.UUID `json:"merchant_id"`
	DriverWalletID  uuid.UUID `json:"driver_wallet_id"`
	PassTokenUsed   *string   `json:"pass_token_used,omitempty"`
	OrderTotalCents int64     `json:"order_total_cents"`
	DiscountCents   int64     `json:"discount_cents"`
	NovaSpentCents  int64     `json:"nova_spent_cents"`
	ExternalOrderID *string   `json:"external_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
