package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/google/uuid"
)

// RegistrationRepo implements ports.RegistrationRepository.
type RegistrationRepo struct {
	pool Pool
}

// NewRegistrationRepo creates a new RegistrationRepo.
func NewRegistrationRepo(pool Pool) *RegistrationRepo {
	return &RegistrationRepo{pool: pool}
}

// Upsert inserts a registration, or refreshes and reactivates the existing
// row for the same (device, pass type, serial). The returned bool reports
// whether an active row existed before the call, evaluated in the same
// statement so concurrent upserts stay consistent.
func (r *RegistrationRepo) Upsert(ctx context.Context, reg *domain.PassRegistration) (bool, error) {
	query := `WITH existing AS (
			SELECT active FROM pass_registrations
			WHERE device_library_id = $3 AND pass_type_id = $4 AND serial_number = $5
		), upsert AS (
			INSERT INTO pass_registrations (id, wallet_id, device_library_id, pass_type_id, serial_number, push_token, active, first_seen_at, last_seen_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
			ON CONFLICT (device_library_id, pass_type_id, serial_number) DO UPDATE
			SET push_token = EXCLUDED.push_token, active = TRUE, last_seen_at = EXCLUDED.last_seen_at
		)
		SELECT NOT COALESCE((SELECT active FROM existing), FALSE)`

	var created bool
	err := r.pool.QueryRow(ctx, query,
		reg.ID, reg.WalletID, reg.DeviceLibraryID, reg.PassTypeID,
		reg.SerialNumber, reg.PushToken, reg.FirstSeenAt, reg.LastSeenAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert registration: %w", err)
	}
	return created, nil
}

// Deactivate soft-deletes a registration. Unknown rows are not an error.
func (r *RegistrationRepo) Deactivate(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error {
	query := `UPDATE pass_registrations SET active = FALSE, last_seen_at = NOW()
		WHERE device_library_id = $1 AND pass_type_id = $2 AND serial_number = $3 AND active`

	if _, err := r.pool.Exec(ctx, query, deviceLibraryID, passTypeID, serialNumber); err != nil {
		return fmt.Errorf("deactivate registration: %w", err)
	}
	return nil
}

// ListActiveByWallet fetches the active registrations subscribed to a wallet.
func (r *RegistrationRepo) ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.PassRegistration, error) {
	query := `SELECT id, wallet_id, device_library_id, pass_type_id, serial_number, push_token, active, first_seen_at, last_seen_at
		FROM pass_registrations WHERE wallet_id = $1 AND active`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list registrations by wallet: %w", err)
	}
	defer rows.Close()

	var regs []domain.PassRegistration
	for rows.Next() {
		var reg domain.PassRegistration
		if err := rows.Scan(
			&reg.ID, &reg.WalletID, &reg.DeviceLibraryID, &reg.PassTypeID,
			&reg.SerialNumber, &reg.PushToken, &reg.Active, &reg.FirstSeenAt, &reg.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

// ListUpdatedSince returns serials registered to the device whose wallet has
// activity after since. Activity is compared at second granularity so that a
// device echoing back the watermark it was given sees nothing new.
func (r *RegistrationRepo) ListUpdatedSince(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]ports.SerialUpdate, error) {
	query := `SELECT r.serial_number, w.last_activity_at
		FROM pass_registrations r
		JOIN wallets w ON w.id = r.wallet_id
		WHERE r.device_library_id = $1 AND r.pass_type_id = $2 AND r.active
			AND date_trunc('second', w.last_activity_at) > $3
		ORDER BY w.last_activity_at`

	rows, err := r.pool.Query(ctx, query, deviceLibraryID, passTypeID, since)
	if err != nil {
		return nil, fmt.Errorf("list updated serials: %w", err)
	}
	defer rows.Close()

	var updates []ports.SerialUpdate
	for rows.Next() {
		var u ports.SerialUpdate
		if err := rows.Scan(&u.SerialNumber, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan serial update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate serial updates: %w", err)
	}
	return updates, nil
}

// HasRegistrations reports whether the device holds any active registration
// for the pass type.
func (r *RegistrationRepo) HasRegistrations(ctx context.Context, deviceLibraryID, passTypeID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM pass_registrations
		WHERE device_library_id = $1 AND pass_type_id = $2 AND active)`

	var known bool
	if err := r.pool.QueryRow(ctx, query, deviceLibraryID, passTypeID).Scan(&known); err != nil {
		return false, fmt.Errorf("check device registrations: %w", err)
	}
	return known, nil
}
