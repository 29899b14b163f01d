package ports

import "context"

// HealthChecker is implemented by infrastructure dependencies that can be
// pinged for the deep health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
