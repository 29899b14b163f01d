package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerava/nova/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FeePeriodRepo implements ports.FeePeriodRepository.
type FeePeriodRepo struct {
	pool Pool
}

// NewFeePeriodRepo creates a new FeePeriodRepo.
func NewFeePeriodRepo(pool Pool) *FeePeriodRepo {
	return &FeePeriodRepo{pool: pool}
}

// Accrue adds to the merchant's period totals, creating the row on first
// accrual. The increment-upsert is atomic, so concurrent redemptions in the
// same period never lose updates.
func (r *FeePeriodRepo) Accrue(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time, novaCents, feeCents int64) error {
	query := `INSERT INTO fee_periods (id, merchant_id, period_start, period_end, nova_redeemed_cents, fee_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (merchant_id, period_start) DO UPDATE
		SET nova_redeemed_cents = fee_periods.nova_redeemed_cents + EXCLUDED.nova_redeemed_cents,
			fee_cents = fee_periods.fee_cents + EXCLUDED.fee_cents,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		uuid.New(), merchantID, periodStart, periodEnd,
		novaCents, feeCents, domain.FeePeriodAccruing,
	)
	if err != nil {
		return fmt.Errorf("accrue fee period: %w", err)
	}
	return nil
}

// GetByMerchantPeriod fetches one merchant fee period by its start instant.
func (r *FeePeriodRepo) GetByMerchantPeriod(ctx context.Context, merchantID uuid.UUID, periodStart time.Time) (*domain.FeePeriod, error) {
	query := `SELECT id, merchant_id, period_start, period_end, nova_redeemed_cents, fee_cents, status, created_at, updated_at
		FROM fee_periods WHERE merchant_id = $1 AND period_start = $2`

	fp := &domain.FeePeriod{}
	err := r.pool.QueryRow(ctx, query, merchantID, periodStart).Scan(
		&fp.ID, &fp.MerchantID, &fp.PeriodStart, &fp.PeriodEnd,
		&fp.NovaRedeemedCents, &fp.FeeCents, &fp.Status,
		&fp.CreatedAt, &fp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fee period: %w", err)
	}
	return fp, nil
}
