package service

import (
	"fmt"
	"time"

	"github.com/nerava/nova/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTTokenService implements ports.TokenService for merchant API tokens.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTTokenService creates a new JWTTokenService.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{secret: []byte(secret), expiry: expiry, issuer: issuer}
}

type merchantClaims struct {
	jwt.RegisteredClaims
}

// Generate issues a signed token for the merchant.
func (s *JWTTokenService) Generate(merchantID uuid.UUID) (string, time.Time, error) {
	now := time.Now().UTC()
	expiry := now.Add(s.expiry)

	claims := merchantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   merchantID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiry, nil
}

// Validate parses and verifies a token string.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	var claims merchantClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	merchantID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("parsing subject: %w", err)
	}
	return &ports.TokenClaims{MerchantID: merchantID}, nil
}
