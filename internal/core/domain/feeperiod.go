package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeePeriodStatus is driven externally by billing; only stored here.
type FeePeriodStatus string

const (
	FeePeriodAccruing FeePeriodStatus = "accruing"
	FeePeriodInvoiced FeePeriodStatus = "invoiced"
	FeePeriodPaid     FeePeriodStatus = "paid"
)

// FeePeriod accumulates a merchant's Nova redemptions for one calendar
// month. Uniquely keyed by (merchant_id, period_start); updated by
// increment, never overwrite, so concurrent redemptions in the same period
// cannot lose updates.
type FeePeriod struct {
	ID                uuid.UUID       `json:"id"`
	MerchantID        uuid.UUID       `json:"merchant_id"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	NovaRedeemedCents int64           `json:"nova_redeemed_cents"`
	FeeCents          int64           `json:"fee_cents"`
	Status            FeePeriodStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PeriodStartFor truncates t to the first instant of its calendar month (UTC).
func PeriodStartFor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEndFor returns the first instant of the month following t (UTC).
func PeriodEndFor(t time.Time) time.Time {
	return PeriodStartFor(t).AddDate(0, 1, 0)
}

// FeeFor computes the fee on a redeemed amount at rateBps basis points,
// rounded half-up.
func FeeFor(amountCents, rateBps int64) int64 {
	return (amountCents*rateBps + 5000) / 10000
}
