package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FeeAccrualServiceImpl rolls redeemed Nova into monthly fee periods.
// Accrual is an atomic upsert, so concurrent redemptions for the same
// merchant and month never lose increments.
type FeeAccrualServiceImpl struct {
	feePeriodRepo ports.FeePeriodRepository
	rateBps       int64
	log           zerolog.Logger
}

// NewFeeAccrualService creates a new FeeAccrualServiceImpl.
// rateBps is the platform fee rate in basis points.
func NewFeeAccrualService(feePeriodRepo ports.FeePeriodRepository, rateBps int64, log zerolog.Logger) *FeeAccrualServiceImpl {
	return &FeeAccrualServiceImpl{feePeriodRepo: feePeriodRepo, rateBps: rateBps, log: log}
}

// Accrue adds novaCents (and the derived fee) to the merchant's period
// covering the instant at.
func (s *FeeAccrualServiceImpl) Accrue(ctx context.Context, merchantID uuid.UUID, at time.Time, novaCents int64) error {
	if novaCents <= 0 {
		return nil
	}

	periodStart := domain.PeriodStartFor(at)
	periodEnd := domain.PeriodEndFor(at)
	feeCents := domain.FeeFor(novaCents, s.rateBps)

	if err := s.feePeriodRepo.Accrue(ctx, merchantID, periodStart, periodEnd, novaCents, feeCents); err != nil {
		return fmt.Errorf("accruing fee period: %w", err)
	}

	s.log.Debug().
		Str("merchant_id", merchantID.String()).
		Time("period_start", periodStart).
		Int64("nova_cents", novaCents).
		Int64("fee_cents", feeCents).
		Msg("fee accrued")
	return nil
}
