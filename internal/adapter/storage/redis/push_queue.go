package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const pushQueueKey = "nova:push_signals"

// PushQueue implements ports.PushSignalQueue on a Redis list. Signals are
// wallet IDs; losing one is acceptable because devices also poll, so there
// is no ack/retry machinery.
type PushQueue struct {
	client       *goredis.Client
	pollInterval time.Duration
}

// NewPushQueue creates a new Redis-backed push signal queue.
func NewPushQueue(client *goredis.Client, pollInterval time.Duration) *PushQueue {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &PushQueue{client: client, pollInterval: pollInterval}
}

// Enqueue pushes a wallet ID onto the queue.
func (q *PushQueue) Enqueue(ctx context.Context, walletID uuid.UUID) error {
	if err := q.client.LPush(ctx, pushQueueKey, walletID.String()).Err(); err != nil {
		return fmt.Errorf("redis push enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks up to the poll interval waiting for a signal. Returns
// uuid.Nil with nil error when the interval elapses with nothing queued.
func (q *PushQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	vals, err := q.client.BRPop(ctx, q.pollInterval, pushQueueKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("redis push dequeue: %w", err)
	}
	// BRPop returns [key, value].
	walletID, err := uuid.Parse(vals[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse queued wallet id: %w", err)
	}
	return walletID, nil
}
