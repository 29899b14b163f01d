package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nerava/nova/internal/core/domain"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/rs/zerolog"
)

// ProcessorOrderClient implements ports.OrderLookup against the payment
// processor's order API, authenticating with the merchant's stored OAuth
// credentials.
type ProcessorOrderClient struct {
	encSvc     ports.EncryptionService
	httpClient HTTPClient
	baseURL    string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewProcessorOrderClient creates a new ProcessorOrderClient.
func NewProcessorOrderClient(encSvc ports.EncryptionService, httpClient HTTPClient, baseURL string, timeout time.Duration, log zerolog.Logger) *ProcessorOrderClient {
	return &ProcessorOrderClient{
		encSvc:     encSvc,
		httpClient: httpClient,
		baseURL:    baseURL,
		timeout:    timeout,
		log:        log,
	}
}

type processorOrder struct {
	TotalCents int64 `json:"total_cents"`
}

// LookupOrder fetches the authoritative total for an external order.
// The call carries a bounded timeout so a slow processor cannot hold the
// redemption path open.
func (c *ProcessorOrderClient) LookupOrder(ctx context.Context, merchant *domain.Merchant, externalOrderID string) (int64, error) {
	if merchant.ProcessorCredsEnc == nil {
		return 0, fmt.Errorf("merchant %s has no processor credentials", merchant.ID)
	}
	accessToken, err := c.encSvc.Decrypt(*merchant.ProcessorCredsEnc)
	if err != nil {
		return 0, fmt.Errorf("unseal processor credentials: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v2/orders/%s", c.baseURL, externalOrderID)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create order request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("processor returned %d for order %s", resp.StatusCode, externalOrderID)
	}

	var order processorOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return 0, fmt.Errorf("decode order: %w", err)
	}
	return order.TotalCents, nil
}
