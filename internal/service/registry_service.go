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

// RegistryServiceImpl tracks device-to-pass subscriptions for push fan-out
// and the list-updated protocol query.
type RegistryServiceImpl struct {
	regRepo ports.RegistrationRepository
	log     zerolog.Logger
}

// NewRegistryService creates a new RegistryServiceImpl.
func NewRegistryService(regRepo ports.RegistrationRepository, log zerolog.Logger) *RegistryServiceImpl {
	return &RegistryServiceImpl{regRepo: regRepo, log: log}
}

// Register records a device's subscription to a serial. Re-registering is
// idempotent: the push token and last-seen time refresh, and the returned
// bool reports whether a new active row was created.
func (s *RegistryServiceImpl) Register(ctx context.Context, walletID uuid.UUID, deviceLibraryID, passTypeID, serialNumber, pushToken string) (bool, error) {
	now := time.Now().UTC()
	reg := &domain.PassRegistration{
		ID:              uuid.New(),
		WalletID:        walletID,
		DeviceLibraryID: deviceLibraryID,
		PassTypeID:      passTypeID,
		SerialNumber:    serialNumber,
		PushToken:       pushToken,
		Active:          true,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}

	created, err := s.regRepo.Upsert(ctx, reg)
	if err != nil {
		return false, fmt.Errorf("upserting registration: %w", err)
	}

	s.log.Info().
		Str("device", deviceLibraryID).
		Str("serial", serialNumber).
		Bool("created", created).
		Msg("pass registered")
	return created, nil
}

// Deregister deactivates a subscription. Unknown rows are a no-op.
func (s *RegistryServiceImpl) Deregister(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error {
	if err := s.regRepo.Deactivate(ctx, deviceLibraryID, passTypeID, serialNumber); err != nil {
		return fmt.Errorf("deactivating registration: %w", err)
	}
	s.log.Info().Str("device", deviceLibraryID).Str("serial", serialNumber).Msg("pass deregistered")
	return nil
}

// ListActiveFor returns the active registrations subscribed to a wallet.
func (s *RegistryServiceImpl) ListActiveFor(ctx context.Context, walletID uuid.UUID) ([]domain.PassRegistration, error) {
	regs, err := s.regRepo.ListActiveByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	return regs, nil
}

// ListUpdatedSerials answers the list-updated protocol query. A nil result
// means the device holds no registrations for this pass type at all; an
// empty SerialNumbers slice means nothing changed since the watermark.
func (s *RegistryServiceImpl) ListUpdatedSerials(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) (*ports.SerialUpdates, error) {
	known, err := s.regRepo.HasRegistrations(ctx, deviceLibraryID, passTypeID)
	if err != nil {
		return nil, fmt.Errorf("checking device registrations: %w", err)
	}
	if !known {
		return nil, nil
	}

	updates, err := s.regRepo.ListUpdatedSince(ctx, deviceLibraryID, passTypeID, since)
	if err != nil {
		return nil, fmt.Errorf("listing updated serials: %w", err)
	}

	result := &ports.SerialUpdates{SerialNumbers: make([]string, 0, len(updates))}
	for _, u := range updates {
		result.SerialNumbers = append(result.SerialNumbers, u.SerialNumber)
		if u.UpdatedAt.After(result.LastUpdated) {
			result.LastUpdated = u.UpdatedAt
		}
	}
	return result, nil
}
