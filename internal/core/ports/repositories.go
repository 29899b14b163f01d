package ports

import (
	"context"
	"errors"
	"time"

	"github.com/nerava/nova/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrConflict is returned by repositories when an insert loses a uniqueness
// race (e.g. the (merchant, external_order_id) redemption slot). Services
// translate it into the taxonomy error for their operation.
var ErrConflict = errors.New("uniqueness conflict")

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside ledger transactions; the ForUpdate
// variant takes the row lock that serializes balance mutations.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwner(ctx context.Context, ownerType domain.WalletOwnerType, ownerID uuid.UUID) (*domain.Wallet, error)
	GetByPassToken(ctx context.Context, passToken string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, ownerType domain.WalletOwnerType, ownerID uuid.UUID) (*domain.Wallet, error)
	// UpdateBalance writes the new balance and bumps last_activity_at with
	// the same timestamp the accompanying ledger rows carry.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceCents int64, activityAt time.Time) error
}

// TransactionRepository defines persistence for the append-only ledger.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.Transaction, error)
}

// RedemptionRepository defines persistence for redemption records.
// Create returns ErrConflict when the (merchant, external_order_id) slot is
// already taken.
type RedemptionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, redemption *domain.Redemption) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Redemption, error)
	// ExistsForOrder reports whether the (merchant, external_order_id) slot
	// is already taken, so a replayed order is identified as such before any
	// balance or perk bound can reject it with a different code.
	ExistsForOrder(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, externalOrderID string) (bool, error)
}

// FeePeriodRepository defines persistence for monthly merchant fee periods.
// Accrue is an atomic increment-upsert keyed on (merchant, period start).
type FeePeriodRepository interface {
	Accrue(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time, novaCents, feeCents int64) error
	GetByMerchantPeriod(ctx context.Context, merchantID uuid.UUID, periodStart time.Time) (*domain.FeePeriod, error)
}

// SerialUpdate pairs a serial number with its wallet's activity timestamp.
type SerialUpdate struct {
	SerialNumber string
	UpdatedAt    time.Time
}

// RegistrationRepository defines persistence for pass registrations.
type RegistrationRepository interface {
	// Upsert inserts or reactivates a registration; returns true when no
	// active row existed before.
	Upsert(ctx context.Context, reg *domain.PassRegistration) (bool, error)
	// Deactivate soft-deletes; unknown rows are not an error.
	Deactivate(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error
	ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.PassRegistration, error)
	// ListUpdatedSince returns serials registered to the device whose wallet
	// activity is strictly after since.
	ListUpdatedSince(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]SerialUpdate, error)
	// HasRegistrations reports whether the device is known at all for this
	// pass type (active rows), distinguishing "unknown device" from
	// "nothing updated".
	HasRegistrations(ctx context.Context, deviceLibraryID, passTypeID string) (bool, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
