package ports

import (
	"context"
	"iter"

	"pin-ledger/internal/core/domain"
)

// LedgerTx is the set of account and ledger operations a store exposes,
// both as standalone calls and inside WithinTx.
//
// Create, Get, Update and Remove report domain.ErrAlreadyExists and
// domain.ErrNotFound. Any other failure matches domain.ErrStorageFailure.
type LedgerTx interface {
	// Create stores a new account with a zero balance. The id stays
	// reserved after the account is removed.
	Create(ctx context.Context, id, pinHash string) (*domain.Account, error)
	// Get returns a copy of a live account.
	Get(ctx context.Context, id string) (*domain.Account, error)
	// Update applies mutate to a copy of the account and persists it. If
	// mutate returns an error nothing is written and that error is returned.
	Update(ctx context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error)
	// Remove tombstones a live account. Ledger entries are untouched.
	Remove(ctx context.Context, id string) error
	// AppendEntry appends to the ledger.
	AppendEntry(ctx context.Context, entry domain.LedgerEntry) error
}

// AccountStore owns every account and ledger entry.
type AccountStore interface {
	LedgerTx

	// EntriesFor yields the ledger entries of id oldest first. Each range
	// over the returned sequence reads the store afresh. Entries of removed
	// accounts are still yielded.
	EntriesFor(ctx context.Context, id string) iter.Seq2[domain.LedgerEntry, error]

	// WithinTx runs fn in a single transaction: all of fn's writes are
	// committed together, or none are if fn or the commit fails.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// Close releases the underlying resources.
	Close() error
}

// AccountLocker serializes mutations per account across goroutines, and
// across processes for distributed implementations.
type AccountLocker interface {
	// Lock acquires every id in sorted order, skipping duplicates. The
	// returned func releases them and is safe to call more than once.
	Lock(ctx context.Context, ids ...string) (func(), error)
}

// AuditRepository persists audit records.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}
