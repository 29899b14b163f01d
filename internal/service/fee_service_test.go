package service

import (
	"context"
	"testing"
	"time"

	"github.com/nerava/nova/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFeeAccrualService_Accrue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockFeePeriodRepository(ctrl)
	svc := NewFeeAccrualService(repo, 1500, zerolog.Nop())

	ctx := context.Background()
	merchantID := uuid.New()
	at := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	periodStart := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	// 600 * 15% = 90
	repo.EXPECT().Accrue(ctx, merchantID, periodStart, periodEnd, int64(600), int64(90)).Return(nil)

	require.NoError(t, svc.Accrue(ctx, merchantID, at, 600))
}

func TestFeeAccrualService_Accrue_RoundsHalfUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockFeePeriodRepository(ctrl)
	svc := NewFeeAccrualService(repo, 1500, zerolog.Nop())

	ctx := context.Background()
	merchantID := uuid.New()
	at := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	// 333 * 0.15 = 49.95 -> 50
	repo.EXPECT().Accrue(ctx, merchantID, gomock.Any(), gomock.Any(), int64(333), int64(50)).Return(nil)

	require.NoError(t, svc.Accrue(ctx, merchantID, at, 333))
}

func TestFeeAccrualService_Accrue_SkipsNonPositive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockFeePeriodRepository(ctrl)
	svc := NewFeeAccrualService(repo, 1500, zerolog.Nop())

	// No repo call expected.
	assert.NoError(t, svc.Accrue(context.Background(), uuid.New(), time.Now(), 0))
}
