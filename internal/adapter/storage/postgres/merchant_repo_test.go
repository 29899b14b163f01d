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

func newTestMerchant() *domain.Merchant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Merchant{
		ID:              uuid.New(),
		Name:            "Volt Coffee",
		PerkAmountCents: 300,
		APISecretHash:   "$argon2id$hash",
		Status:          domain.MerchantStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestMerchantRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	m := newTestMerchant()

	mock.ExpectExec("INSERT INTO merchants").
		WithArgs(m.ID, m.Name, m.PerkAmountCents, m.APISecretHash,
			m.ProcessorCredsEnc, m.Status, m.CreatedAt, m.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), m)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	m := newTestMerchant()

	mock.ExpectQuery("SELECT .+ FROM merchants WHERE id").
		WithArgs(m.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "perk_amount_cents", "api_secret_hash",
			"processor_creds_enc", "status", "created_at", "updated_at",
		}).AddRow(
			m.ID, m.Name, m.PerkAmountCents, m.APISecretHash,
			m.ProcessorCredsEnc, m.Status, m.CreatedAt, m.UpdatedAt,
		))

	result, err := repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, m.Name, result.Name)
	assert.Equal(t, int64(300), result.PerkAmountCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM merchants WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	result, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
