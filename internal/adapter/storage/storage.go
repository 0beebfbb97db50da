// Package storage opens the account store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"pin-ledger/config"
	"pin-ledger/internal/adapter/storage/jsonfile"
	"pin-ledger/internal/adapter/storage/memory"
	"pin-ledger/internal/adapter/storage/postgres"
	"pin-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// Backend is an opened account store and the collaborators that share its
// connection.
type Backend struct {
	Store  ports.AccountStore
	Health ports.HealthChecker
	// Audit is nil for stores without an audit table.
	Audit ports.AuditRepository
}

// Open opens the store named by cfg.Store.Driver. The caller closes
// Backend.Store at shutdown.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case "memory":
		s := memory.New()
		return &Backend{Store: s, Health: s}, nil

	case "jsonfile":
		s, err := jsonfile.Open(cfg.Store.JSONPath, log)
		if err != nil {
			return nil, fmt.Errorf("opening json store: %w", err)
		}
		return &Backend{Store: s, Health: s}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{
			Store:  postgres.NewAccountStore(pool, pool.Close),
			Health: postgres.NewHealthCheck(pool),
			Audit:  postgres.NewAuditRepository(pool),
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
