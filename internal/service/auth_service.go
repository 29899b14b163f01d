package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/pkg/apperror"

	"github.com/google/uuid"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	merchantRepo ports.MerchantRepository
	hashSvc      ports.HashService
	tokenSvc     ports.TokenService
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(merchantRepo ports.MerchantRepository, hashSvc ports.HashService, tokenSvc ports.TokenService) *AuthServiceImpl {
	return &AuthServiceImpl{merchantRepo: merchantRepo, hashSvc: hashSvc, tokenSvc: tokenSvc}
}

// Login verifies the merchant's API secret and returns a JWT.
func (s *AuthServiceImpl) Login(ctx context.Context, merchantID uuid.UUID, apiSecret string) (string, time.Time, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find merchant: %w", err))
	}
	if merchant == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(apiSecret, merchant.APISecretHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify secret: %w", err))
	}
	if !valid || !merchant.IsActive() {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(merchant.ID)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiry, nil
}
