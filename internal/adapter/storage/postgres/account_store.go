package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// entriesPageSize bounds how many ledger rows EntriesFor fetches per query.
const entriesPageSize = 256

const pgCheckViolation = "23514"

// AccountStore implements ports.AccountStore on PostgreSQL. Accounts read
// inside WithinTx are locked with SELECT ... FOR UPDATE until commit.
type AccountStore struct {
	pool   Pool
	now    func() time.Time
	closer func()
}

var _ ports.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore. closer, if not nil, is called
// by Close.
func NewAccountStore(pool Pool, closer func()) *AccountStore {
	return &AccountStore{
		pool:   pool,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		closer: closer,
	}
}

// WithinTx runs fn in one database transaction.
func (s *AccountStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	return execTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &ledgerTx{q: tx, now: s.now(), forUpdate: true})
	})
}

func (s *AccountStore) direct() *ledgerTx {
	return &ledgerTx{q: s.pool, now: s.now()}
}

func (s *AccountStore) Create(ctx context.Context, id, pinHash string) (*domain.Account, error) {
	return s.direct().Create(ctx, id, pinHash)
}

func (s *AccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	return s.direct().Get(ctx, id)
}

// Update needs a row lock between read and write, so it always runs in its
// own transaction.
func (s *AccountStore) Update(ctx context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error) {
	var acc *domain.Account
	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		var err error
		acc, err = tx.Update(ctx, id, mutate)
		return err
	})
	return acc, err
}

func (s *AccountStore) Remove(ctx context.Context, id string) error {
	return s.direct().Remove(ctx, id)
}

func (s *AccountStore) AppendEntry(ctx context.Context, entry domain.LedgerEntry) error {
	return s.direct().AppendEntry(ctx, entry)
}

// EntriesFor pages through ledger_entries by sequence number, so a long
// history is never held in memory at once.
func (s *AccountStore) EntriesFor(ctx context.Context, id string) iter.Seq2[domain.LedgerEntry, error] {
	return func(yield func(domain.LedgerEntry, error) bool) {
		var after int64
		for {
			page, last, err := s.entriesPage(ctx, id, after)
			if err != nil {
				yield(domain.LedgerEntry{}, domain.StorageFailure(err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < entriesPageSize {
				return
			}
			after = last
		}
	}
}

func (s *AccountStore) entriesPage(ctx context.Context, id string, after int64) ([]domain.LedgerEntry, int64, error) {
	query := `SELECT seq, id, account_id, kind, amount, COALESCE(counterparty, ''), created_at
		FROM ledger_entries WHERE account_id = $1 AND seq > $2 ORDER BY seq LIMIT $3`

	rows, err := s.pool.Query(ctx, query, id, after, entriesPageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var (
		page []domain.LedgerEntry
		last int64
	)
	for rows.Next() {
		var (
			e      domain.LedgerEntry
			kind   string
			amount int64
		)
		if err := rows.Scan(&last, &e.ID, &e.AccountID, &kind, &amount, &e.Counterparty, &e.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.Amount = money.Amount(amount)
		e.Timestamp = e.Timestamp.UTC()
		page = append(page, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return page, last, nil
}

// Close closes the underlying pool.
func (s *AccountStore) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// ledgerTx runs the account statements against a pool or a transaction.
type ledgerTx struct {
	q         querier
	now       time.Time
	forUpdate bool
}

const accountColumns = `id, pin_hash, balance, created_at, updated_at, closed_at`

func (t *ledgerTx) Create(ctx context.Context, id, pinHash string) (*domain.Account, error) {
	query := `INSERT INTO accounts (id, pin_hash, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3) ON CONFLICT (id) DO NOTHING`

	tag, err := t.q.Exec(ctx, query, id, pinHash, t.now)
	if err != nil {
		return nil, domain.StorageFailure(fmt.Errorf("insert account: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("account %q: %w", id, domain.ErrAlreadyExists)
	}
	return &domain.Account{
		ID:        id,
		PinHash:   pinHash,
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}, nil
}

func (t *ledgerTx) Get(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND closed_at IS NULL`
	if t.forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		a       domain.Account
		balance int64
	)
	err := t.q.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PinHash, &balance, &a.CreatedAt, &a.UpdatedAt, &a.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", id, domain.ErrNotFound)
		}
		return nil, domain.StorageFailure(fmt.Errorf("get account: %w", err))
	}
	a.Balance = money.Amount(balance)
	return &a, nil
}

func (t *ledgerTx) Update(ctx context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error) {
	current, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = t.now

	query := `UPDATE accounts SET pin_hash = $2, balance = $3, updated_at = $4 WHERE id = $1`
	if _, err := t.q.Exec(ctx, query, id, next.PinHash, int64(next.Balance), next.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return nil, fmt.Errorf("account %q: %w", id, domain.ErrInsufficientFunds)
		}
		return nil, domain.StorageFailure(fmt.Errorf("update account: %w", err))
	}
	return next, nil
}

func (t *ledgerTx) Remove(ctx context.Context, id string) error {
	query := `UPDATE accounts SET closed_at = $2, updated_at = $2, pin_hash = '' WHERE id = $1 AND closed_at IS NULL`

	tag, err := t.q.Exec(ctx, query, id, t.now)
	if err != nil {
		return domain.StorageFailure(fmt.Errorf("close account: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) AppendEntry(ctx context.Context, e domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, account_id, kind, amount, counterparty, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := t.q.Exec(ctx, query,
		e.ID, e.AccountID, string(e.Kind), int64(e.Amount), nullable(e.Counterparty), e.Timestamp,
	)
	if err != nil {
		return domain.StorageFailure(fmt.Errorf("insert ledger entry: %w", err))
	}
	return nil
}
