package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/nerava/nova/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistration() *domain.PassRegistration {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PassRegistration{
		ID:              uuid.New(),
		WalletID:        uuid.New(),
		DeviceLibraryID: "device-1",
		PassTypeID:      "pass.com.nerava.nova",
		SerialNumber:    "nova-tok123",
		PushToken:       "apns-token",
		Active:          true,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
}

func TestRegistrationRepo_Upsert_New(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistrationRepo(mock)
	reg := newTestRegistration()

	mock.ExpectQuery("INSERT INTO pass_registrations").
		WithArgs(reg.ID, reg.WalletID, reg.DeviceLibraryID, reg.PassTypeID,
			reg.SerialNumber, reg.PushToken, reg.FirstSeenAt, reg.LastSeenAt).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(true))

	created, err := repo.Upsert(context.Background(), reg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepo_Upsert_Existing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistrationRepo(mock)
	reg := newTestRegistration()

	mock.ExpectQuery("INSERT INTO pass_registrations").
		WithArgs(reg.ID, reg.WalletID, reg.DeviceLibraryID, reg.PassTypeID,
			reg.SerialNumber, reg.PushToken, reg.FirstSeenAt, reg.LastSeenAt).
		WillReturnRows(pgxmock.NewRows([]string{"created"}).AddRow(false))

	created, err := repo.Upsert(context.Background(), reg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepo_Deactivate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistrationRepo(mock)

	mock.ExpectExec("UPDATE pass_registrations SET active").
		WithArgs("device-1", "pass.com.nerava.nova", "nova-tok123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Deactivate(context.Background(), "device-1", "pass.com.nerava.nova", "nova-tok123")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepo_Deactivate_UnknownIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistrationRepo(mock)

	mock.ExpectExec("UPDATE pass_registrations SET active").
		WithArgs("ghost", "pass.com.nerava.nova", "nova-x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Deactivate(context.Background(), "ghost", "pass.com.nerava.nova", "nova-x")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepo_ListUpdatedSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistrationRepo(mock)
	since := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	updatedAt := since.Add(24 * time.Hour)

	mock.ExpectQuery("SELECT r.serial_number, w.last_activity_at").
		WithArgs("device-1", "pass.com.nerava.nova", since).
		WillReturnRows(pgxmock.NewRows([]string{"serial_number", "last_activity_at"}).
			AddRow("nova-tok123", updatedAt))

	updates, err := repo.ListUpdatedSince(context.Background(), "device-1", "pass.com.nerava.nova", since)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "nova-tok123", updates[0].SerialNumber)
	assert.Equal(t, updatedAt, updates[0].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepo_HasRegistrations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistrationRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("device-1", "pass.com.nerava.nova").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	known, err := repo.HasRegistrations(context.Background(), "device-1", "pass.com.nerava.nova")
	require.NoError(t, err)
	assert.True(t, known)
	assert.NoError(t, mock.ExpectationsWereMet())
}
