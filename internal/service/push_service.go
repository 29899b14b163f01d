package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nerava/nova/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// pushRequest is the JSON body sent to the push gateway per device.
type pushRequest struct {
	PushToken string `json:"push_token"`
}

// PushServiceImpl drains the push-signal queue and notifies every device
// registered to the signalled wallet. Delivery is best-effort: the gateway
// body is empty on purpose, devices fetch fresh state via the protocol.
type PushServiceImpl struct {
	queue      ports.PushSignalQueue
	registry   ports.RegistryService
	httpClient HTTPClient
	gatewayURL string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewPushService creates a new PushServiceImpl.
func NewPushService(queue ports.PushSignalQueue, registry ports.RegistryService, httpClient HTTPClient, gatewayURL string, timeout time.Duration, log zerolog.Logger) *PushServiceImpl {
	return &PushServiceImpl{
		queue:      queue,
		registry:   registry,
		httpClient: httpClient,
		gatewayURL: gatewayURL,
		timeout:    timeout,
		log:        log,
	}
}

// Run consumes the queue until ctx is cancelled. Intended to be started as
// a worker goroutine; safe to run several concurrently.
func (s *PushServiceImpl) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		walletID, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("push: dequeue failed")
			continue
		}
		if walletID == uuid.Nil {
			continue
		}
		s.Notify(ctx, walletID)
	}
}

// Notify pushes to every device registered to the wallet.
func (s *PushServiceImpl) Notify(ctx context.Context, walletID uuid.UUID) {
	regs, err := s.registry.ListActiveFor(ctx, walletID)
	if err != nil {
		s.log.Warn().Err(err).Str("wallet_id", walletID.String()).Msg("push: listing registrations failed")
		return
	}

	for _, reg := range regs {
		if err := s.deliver(ctx, reg.PushToken); err != nil {
			s.log.Warn().Err(err).Str("device", reg.DeviceLibraryID).Msg("push: delivery failed")
			continue
		}
		s.log.Debug().Str("device", reg.DeviceLibraryID).Str("serial", reg.SerialNumber).Msg("push: delivered")
	}
}

func (s *PushServiceImpl) deliver(ctx context.Context, pushToken string) error {
	body, err := json.Marshal(pushRequest{PushToken: pushToken})
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}
