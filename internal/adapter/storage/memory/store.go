// Package memory is an in-process AccountStore. Transactions are staged on
// copies and applied in one step, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
)

var errClosed = errors.New("store is closed")

// State is a full copy of the store contents.
type State struct {
	Accounts []domain.Account
	Entries  []domain.LedgerEntry
}

// CommitHook is called with the post-commit state before it becomes
// visible. A non-nil error aborts the commit.
type CommitHook func(State) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for account timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithState seeds the store.
func WithState(st State) Option {
	return func(s *Store) { s.load(st) }
}

// WithCommitHook installs a hook run on every commit.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.hook = h }
}

// Store implements ports.AccountStore in memory. A single mutex serializes
// transactions; EntriesFor reads without holding it across yields.
type Store struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Account
	entries   []domain.LedgerEntry
	byAccount map[string][]int
	now       func() time.Time
	hook      CommitHook
	closed    bool
}

var _ ports.AccountStore = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		accounts:  make(map[string]*domain.Account),
		byAccount: make(map[string][]int),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) load(st State) {
	for i := range st.Accounts {
		a := st.Accounts[i]
		s.accounts[a.ID] = a.Clone()
	}
	for _, e := range st.Entries {
		s.byAccount[e.AccountID] = append(s.byAccount[e.AccountID], len(s.entries))
		s.entries = append(s.entries, e)
	}
}

// Snapshot returns a copy of the current state, accounts sorted by id.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateWith(nil, nil)
}

// stateWith renders the committed state overlaid with staged changes.
// Callers hold s.mu.
func (s *Store) stateWith(dirty map[string]*domain.Account, appended []domain.LedgerEntry) State {
	st := State{
		Accounts: make([]domain.Account, 0, len(s.accounts)+len(dirty)),
		Entries:  make([]domain.LedgerEntry, 0, len(s.entries)+len(appended)),
	}
	for id, a := range s.accounts {
		if _, ok := dirty[id]; ok {
			continue
		}
		st.Accounts = append(st.Accounts, *a.Clone())
	}
	for _, a := range dirty {
		st.Accounts = append(st.Accounts, *a.Clone())
	}
	slices.SortFunc(st.Accounts, func(a, b domain.Account) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	st.Entries = append(st.Entries, s.entries...)
	st.Entries = append(st.Entries, appended...)
	return st
}

// WithinTx runs fn against a staged view. The store mutex is held for the
// whole call, so fn must not call methods on s itself.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageFailure(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.StorageFailure(errClosed)
	}

	tx := &stagedTx{s: s, now: s.now(), dirty: make(map[string]*domain.Account)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *stagedTx) error {
	if len(tx.dirty) == 0 && len(tx.appended) == 0 {
		return nil
	}
	if s.hook != nil {
		if err := s.hook(s.stateWith(tx.dirty, tx.appended)); err != nil {
			return domain.StorageFailure(fmt.Errorf("commit: %w", err))
		}
	}
	for id, a := range tx.dirty {
		s.accounts[id] = a
	}
	for _, e := range tx.appended {
		s.byAccount[e.AccountID] = append(s.byAccount[e.AccountID], len(s.entries))
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, id, pinHash string) (*domain.Account, error) {
	var acc *domain.Account
	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		var err error
		acc, err = tx.Create(ctx, id, pinHash)
		return err
	})
	return acc, err
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Account, error) {
	var acc *domain.Account
	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		var err error
		acc, err = tx.Get(ctx, id)
		return err
	})
	return acc, err
}

func (s *Store) Update(ctx context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error) {
	var acc *domain.Account
	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		var err error
		acc, err = tx.Update(ctx, id, mutate)
		return err
	})
	return acc, err
}

func (s *Store) Remove(ctx context.Context, id string) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		return tx.Remove(ctx, id)
	})
}

func (s *Store) AppendEntry(ctx context.Context, entry domain.LedgerEntry) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		return tx.AppendEntry(ctx, entry)
	})
}

// EntriesFor yields entries one at a time. Entries appended while the
// caller is ranging are yielded too; the sequence ends at the first read
// that finds no further entry.
func (s *Store) EntriesFor(ctx context.Context, id string) iter.Seq2[domain.LedgerEntry, error] {
	return func(yield func(domain.LedgerEntry, error) bool) {
		for i := 0; ; i++ {
			if err := ctx.Err(); err != nil {
				yield(domain.LedgerEntry{}, domain.StorageFailure(err))
				return
			}

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				yield(domain.LedgerEntry{}, domain.StorageFailure(errClosed))
				return
			}
			idx := s.byAccount[id]
			if i >= len(idx) {
				s.mu.Unlock()
				return
			}
			e := s.entries[idx[i]]
			s.mu.Unlock()

			if !yield(e, nil) {
				return
			}
		}
	}
}

// Close marks the store closed. Further calls fail with ErrStorageFailure.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// stagedTx buffers writes until commit.
type stagedTx struct {
	s        *Store
	now      time.Time
	dirty    map[string]*domain.Account
	appended []domain.LedgerEntry
}

func (t *stagedTx) lookup(id string) (*domain.Account, bool) {
	if a, ok := t.dirty[id]; ok {
		return a, true
	}
	a, ok := t.s.accounts[id]
	return a, ok
}

func (t *stagedTx) live(id string) (*domain.Account, error) {
	a, ok := t.lookup(id)
	if !ok || a.IsClosed() {
		return nil, fmt.Errorf("account %q: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (t *stagedTx) Create(_ context.Context, id, pinHash string) (*domain.Account, error) {
	if _, ok := t.lookup(id); ok {
		return nil, fmt.Errorf("account %q: %w", id, domain.ErrAlreadyExists)
	}
	acc := &domain.Account{
		ID:        id,
		PinHash:   pinHash,
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}
	t.dirty[id] = acc
	return acc.Clone(), nil
}

func (t *stagedTx) Get(_ context.Context, id string) (*domain.Account, error) {
	a, err := t.live(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (t *stagedTx) Update(_ context.Context, id string, mutate func(*domain.Account) error) (*domain.Account, error) {
	a, err := t.live(id)
	if err != nil {
		return nil, err
	}

	next := a.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if next.Balance < 0 {
		return nil, fmt.Errorf("account %q: %w", id, domain.ErrInsufficientFunds)
	}
	next.ID = a.ID
	next.CreatedAt = a.CreatedAt
	next.UpdatedAt = t.now

	t.dirty[id] = next
	return next.Clone(), nil
}

func (t *stagedTx) Remove(_ context.Context, id string) error {
	a, err := t.live(id)
	if err != nil {
		return err
	}
	next := a.Clone()
	next.Close(t.now)
	t.dirty[id] = next
	return nil
}

func (t *stagedTx) AppendEntry(_ context.Context, entry domain.LedgerEntry) error {
	t.appended = append(t.appended, entry)
	return nil
}
