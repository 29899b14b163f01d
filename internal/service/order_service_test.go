package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func merchantWithCreds(enc string) *domain.Merchant {
	return &domain.Merchant{
		ID:                uuid.New(),
		Status:            domain.MerchantStatusActive,
		ProcessorCredsEnc: &enc,
	}
}

func TestProcessorOrderClient_LookupOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	processor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/SQ-42", r.URL.Path)
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_cents": 1850}`))
	}))
	defer processor.Close()

	encSvc := mocks.NewMockEncryptionService(ctrl)
	encSvc.EXPECT().Decrypt("enc_creds").Return("oauth-token", nil)

	client := NewProcessorOrderClient(encSvc, http.DefaultClient, processor.URL, time.Second, zerolog.Nop())

	total, err := client.LookupOrder(context.Background(), merchantWithCreds("enc_creds"), "SQ-42")
	require.NoError(t, err)
	assert.Equal(t, int64(1850), total)
}

func TestProcessorOrderClient_LookupOrder_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	processor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer processor.Close()

	encSvc := mocks.NewMockEncryptionService(ctrl)
	encSvc.EXPECT().Decrypt("enc_creds").Return("oauth-token", nil)

	client := NewProcessorOrderClient(encSvc, http.DefaultClient, processor.URL, time.Second, zerolog.Nop())

	_, err := client.LookupOrder(context.Background(), merchantWithCreds("enc_creds"), "GONE")
	assert.Error(t, err)
}

func TestProcessorOrderClient_LookupOrder_NoCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	encSvc := mocks.NewMockEncryptionService(ctrl)
	client := NewProcessorOrderClient(encSvc, http.DefaultClient, "http://localhost:0", time.Second, zerolog.Nop())

	merchant := &domain.Merchant{ID: uuid.New(), Status: domain.MerchantStatusActive}
	_, err := client.LookupOrder(context.Background(), merchant, "SQ-42")
	assert.Error(t, err)
}

func TestProcessorOrderClient_LookupOrder_UndecryptableCreds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	encSvc := mocks.NewMockEncryptionService(ctrl)
	encSvc.EXPECT().Decrypt("enc_creds").Return("", assert.AnError)

	client := NewProcessorOrderClient(encSvc, http.DefaultClient, "http://localhost:0", time.Second, zerolog.Nop())

	_, err := client.LookupOrder(context.Background(), merchantWithCreds("enc_creds"), "SQ-42")
	assert.Error(t, err)
}

func TestSecondaryPlatformClient_UpdateObject(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/objects/tok123", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer platform.Close()

	client := NewSecondaryPlatformClient(http.DefaultClient, platform.URL, time.Second, zerolog.Nop())

	wallet := &domain.Wallet{
		ID:             uuid.New(),
		PassToken:      "tok123",
		BalanceCents:   500,
		LastActivityAt: time.Now().UTC(),
	}
	require.NoError(t, client.UpdateObject(context.Background(), wallet))
}

func TestSecondaryPlatformClient_UpdateObject_NonSuccess(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer platform.Close()

	client := NewSecondaryPlatformClient(http.DefaultClient, platform.URL, time.Second, zerolog.Nop())

	wallet := &domain.Wallet{ID: uuid.New(), PassToken: "tok123"}
	assert.Error(t, client.UpdateObject(context.Background(), wallet))
}
