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

const walletColumns = `id, owner_type, owner_id, balance_cents, pass_token, pass_secret_enc,
	charging_active, charging_started_at, last_activity_at, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.OwnerType, &w.OwnerID, &w.BalanceCents,
		&w.PassToken, &w.PassSecretEnc, &w.ChargingActive, &w.ChargingStartedAt,
		&w.LastActivityAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// Create inserts a new wallet within a database transaction. Two first-touch
// transactions can race here; the loser's insert is a no-op and the caller
// re-selects the winner's row under lock.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (owner_type, owner_id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		w.ID, w.OwnerType, w.OwnerID, w.BalanceCents,
		w.PassToken, w.PassSecretEnc, w.ChargingActive, w.ChargingStartedAt,
		w.LastActivityAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByOwner fetches a wallet by its owner (non-locking read).
func (r *WalletRepo) GetByOwner(ctx context.Context, ownerType domain.WalletOwnerType, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_type = $1 AND owner_id = $2`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, ownerType, ownerID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by owner: %w", err)
	}
	return w, nil
}

// GetByPassToken fetches a wallet by its pass token (non-locking read).
func (r *WalletRepo) GetByPassToken(ctx context.Context, passToken string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE pass_token = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, passToken))
	if err != nil {
		return nil, fmt.Errorf("get wallet by pass token: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by id: %w", err)
	}
	return w, nil
}

// GetByOwnerForUpdate fetches a wallet by owner with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, ownerType domain.WalletOwnerType, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_type = $1 AND owner_id = $2 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, ownerType, ownerID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by owner: %w", err)
	}
	return w, nil
}

// UpdateBalance writes the new balance and bumps last_activity_at within a
// transaction. The activity timestamp never moves backwards.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceCents int64, activityAt time.Time) error {
	query := `UPDATE wallets
		SET balance_cents = $1, last_activity_at = GREATEST(last_activity_at, $2), updated_at = NOW()
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, balanceCents, activityAt, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}
