package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// RedemptionRepo implements ports.RedemptionRepository.
type RedemptionRepo struct {
	pool Pool
}

// NewRedemptionRepo creates a new RedemptionRepo.
func NewRedemptionRepo(pool Pool) *RedemptionRepo {
	return &RedemptionRepo{pool: pool}
}

// Create inserts a redemption within a database transaction. A unique
// violation on (merchant_id, external_order_id) maps to ports.ErrConflict so
// the service layer can reject the duplicate before any balance mutation.
func (r *RedemptionRepo) Create(ctx context.Context, tx pgx.Tx, red *domain.Redemption) error {
	query := `INSERT INTO redemptions (id, merchant_id, driver_wallet_id, pass_token_used, order_total_cents, discount_cents, nova_spent_cents, external_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		red.ID, red.MerchantID, red.DriverWalletID, red.PassTokenUsed,
		red.OrderTotalCents, red.DiscountCents, red.NovaSpentCents,
		red.ExternalOrderID, red.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrConflict
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

// ExistsForOrder reports whether a redemption already occupies the
// (merchant, external_order_id) slot. Runs inside the redemption transaction
// so the answer is consistent with the insert that follows.
func (r *RedemptionRepo) ExistsForOrder(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, externalOrderID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM redemptions WHERE merchant_id = $1 AND external_order_id = $2
	)`

	var exists bool
	if err := tx.QueryRow(ctx, query, merchantID, externalOrderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check redemption slot: %w", err)
	}
	return exists, nil
}

// GetByID fetches a redemption by UUID.
func (r *RedemptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Redemption, error) {
	query := `SELECT id, merchant_id, driver_wallet_id, pass_token_used, order_total_cents, discount_cents, nova_spent_cents, external_order_id, created_at
		FROM redemptions WHERE id = $1`

	red := &domain.Redemption{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&red.ID, &red.MerchantID, &red.DriverWalletID, &red.PassTokenUsed,
		&red.OrderTotalCents, &red.DiscountCents, &red.NovaSpentCents,
		&red.ExternalOrderID, &red.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get redemption by id: %w", err)
	}
	return red, nil
}
