package postgres

import (
	"context"
	"fmt"

	"pin-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// execTx runs fn inside a database transaction. fn's error is returned
// unchanged after rollback; infrastructure errors are tagged as storage
// failures.
func execTx(ctx context.Context, pool Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return domain.StorageFailure(fmt.Errorf("begin tx: %w", err))
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return domain.StorageFailure(fmt.Errorf("tx err: %w, rollback err: %v", err, rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StorageFailure(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
