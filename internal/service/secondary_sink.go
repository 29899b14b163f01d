package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nerava/nova/internal/core/domain"

	"github.com/rs/zerolog"
)

// SecondaryPlatformClient implements ports.SecondarySink. It mirrors a
// wallet's balance to the secondary wallet platform's loyalty object.
// Failures are the caller's to log; they never affect the ledger.
type SecondaryPlatformClient struct {
	httpClient HTTPClient
	baseURL    string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewSecondaryPlatformClient creates a new SecondaryPlatformClient.
func NewSecondaryPlatformClient(httpClient HTTPClient, baseURL string, timeout time.Duration, log zerolog.Logger) *SecondaryPlatformClient {
	return &SecondaryPlatformClient{httpClient: httpClient, baseURL: baseURL, timeout: timeout, log: log}
}

type loyaltyObject struct {
	PassToken    string `json:"pass_token"`
	BalanceCents int64  `json:"balance_cents"`
	UpdatedAt    string `json:"updated_at"`
}

// UpdateObject pushes the wallet's current balance to the platform.
func (c *SecondaryPlatformClient) UpdateObject(ctx context.Context, wallet *domain.Wallet) error {
	body, err := json.Marshal(loyaltyObject{
		PassToken:    wallet.PassToken,
		BalanceCents: wallet.BalanceCents,
		UpdatedAt:    wallet.LastActivityAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal loyalty object: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/objects/%s", c.baseURL, wallet.PassToken)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update loyalty object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("secondary platform returned %d", resp.StatusCode)
	}
	return nil
}
