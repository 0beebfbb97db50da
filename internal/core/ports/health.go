package ports

import "context"

// HealthChecker is one dependency reported by GET /health: the account
// store, and Redis when it is enabled.
type HealthChecker interface {
	Ping(ctx context.Context) error // nil when healthy
	Name() string
}
