package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"pin-ledger/config"
	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/internal/export"
	"pin-ledger/pkg/money"

	"github.com/rs/zerolog"
)

// decoyPin is hashed once and verified against whenever an unknown account
// authenticates, so the response time does not reveal whether the id exists.
const decoyPin = "decoy-pin-for-unknown-accounts"

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	store       ports.AccountStore
	locker      ports.AccountLocker
	hasher      ports.PinHasher
	pinLength   int
	maxIDLength int
	now         func() time.Time
	decoyHash   func() (string, error)
	log         zerolog.Logger
}

var _ ports.LedgerService = (*LedgerServiceImpl)(nil)

// LedgerOption configures a LedgerServiceImpl.
type LedgerOption func(*LedgerServiceImpl)

// WithLedgerClock overrides the entry timestamp source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(s *LedgerServiceImpl) { s.now = now }
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	store ports.AccountStore,
	locker ports.AccountLocker,
	hasher ports.PinHasher,
	cfg config.LedgerConfig,
	log zerolog.Logger,
	opts ...LedgerOption,
) *LedgerServiceImpl {
	s := &LedgerServiceImpl{
		store:       store,
		locker:      locker,
		hasher:      hasher,
		pinLength:   cfg.PinLength,
		maxIDLength: cfg.MaxAccountIDLength,
		now:         time.Now,
		log:         log,
	}
	s.decoyHash = sync.OnceValues(func() (string, error) {
		return hasher.Hash(decoyPin)
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account with a zero balance.
func (s *LedgerServiceImpl) Register(ctx context.Context, id, pin string) (*domain.Account, error) {
	if err := ValidateAccountID(id, s.maxIDLength); err != nil {
		return nil, err
	}
	if err := ValidatePin(pin, s.pinLength); err != nil {
		return nil, err
	}

	pinHash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, domain.StorageFailure(fmt.Errorf("hash pin: %w", err))
	}

	acc, err := s.store.Create(ctx, id, pinHash)
	if err != nil {
		return nil, domain.StorageFailure(err)
	}

	s.log.Info().Str("account_id", id).Msg("account registered")
	return acc, nil
}

// Authenticate reports whether pin opens account id. Unknown and deleted
// accounts yield false without an error.
func (s *LedgerServiceImpl) Authenticate(ctx context.Context, id, pin string) (bool, error) {
	acc, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		s.verifyDecoy(pin)
		return false, nil
	}
	if err != nil {
		return false, domain.StorageFailure(err)
	}

	ok, err := s.hasher.Verify(pin, acc.PinHash)
	if err != nil {
		return false, domain.StorageFailure(fmt.Errorf("verify pin: %w", err))
	}
	if ok && s.hasher.NeedsRehash(acc.PinHash) {
		s.rehash(ctx, acc, pin)
	}
	return ok, nil
}

func (s *LedgerServiceImpl) verifyDecoy(pin string) {
	h, err := s.decoyHash()
	if err != nil {
		return
	}
	_, _ = s.hasher.Verify(pin, h)
}

// rehash upgrades an outdated PIN hash. Failure only costs another upgrade
// attempt at the next login.
func (s *LedgerServiceImpl) rehash(ctx context.Context, acc *domain.Account, pin string) {
	newHash, err := s.hasher.Hash(pin)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", acc.ID).Msg("pin rehash failed")
		return
	}

	unlock, err := s.locker.Lock(ctx, acc.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", acc.ID).Msg("pin rehash skipped: lock unavailable")
		return
	}
	defer unlock()

	_, err = s.store.Update(ctx, acc.ID, func(a *domain.Account) error {
		// A concurrent PIN change wins over the upgrade.
		if a.PinHash == acc.PinHash {
			a.PinHash = newHash
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", acc.ID).Msg("pin rehash failed")
		return
	}
	s.log.Info().Str("account_id", acc.ID).Msg("pin hash upgraded")
}

// Balance returns the current state of account id.
func (s *LedgerServiceImpl) Balance(ctx context.Context, id string) (*domain.Account, error) {
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure(err)
	}
	return acc, nil
}

// Deposit credits amount to id.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, id string, amount money.Amount) (*domain.Account, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated *domain.Account
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		acc, err := tx.Update(ctx, id, credit(amount))
		if err != nil {
			return err
		}
		updated = acc
		return tx.AppendEntry(ctx, domain.NewEntry(id, domain.EntryDeposit, amount, "", s.timestamp()))
	})
	if err != nil {
		return nil, domain.StorageFailure(err)
	}

	s.log.Info().
		Str("account_id", id).
		Str("amount", amount.String()).
		Msg("deposit completed")

	return updated, nil
}

// Withdraw debits amount from id after checking pin.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, id string, amount money.Amount, pin string) (*domain.Account, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkPin(ctx, id, pin); err != nil {
		return nil, err
	}

	var updated *domain.Account
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		acc, err := tx.Update(ctx, id, debit(amount))
		if err != nil {
			return err
		}
		updated = acc
		return tx.AppendEntry(ctx, domain.NewEntry(id, domain.EntryWithdraw, amount, "", s.timestamp()))
	})
	if err != nil {
		return nil, domain.StorageFailure(err)
	}

	s.log.Info().
		Str("account_id", id).
		Str("amount", amount.String()).
		Msg("withdraw completed")

	return updated, nil
}

// Transfer moves amount from one account to another and returns the
// sender's new state. Both legs commit together or not at all.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, from, to string, amount money.Amount, pin string) (*domain.Account, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if from == to {
		return nil, domain.ErrSameAccount
	}

	unlock, err := s.lock(ctx, from, to)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkPin(ctx, from, pin); err != nil {
		return nil, err
	}
	if _, err := s.store.Get(ctx, to); err != nil {
		return nil, domain.StorageFailure(err)
	}

	out, in := domain.TransferPair(from, to, amount, s.timestamp())

	var sender *domain.Account
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		acc, err := tx.Update(ctx, from, debit(amount))
		if err != nil {
			return err
		}
		sender = acc
		if _, err := tx.Update(ctx, to, credit(amount)); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, out); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, in)
	})
	if err != nil {
		return nil, domain.StorageFailure(err)
	}

	s.log.Info().
		Str("from", from).
		Str("to", to).
		Str("amount", amount.String()).
		Msg("transfer completed")

	return sender, nil
}

// DeleteAccount tombstones id after checking pin. Ledger entries of the
// account and of its counterparties are kept.
func (s *LedgerServiceImpl) DeleteAccount(ctx context.Context, id, pin string) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.checkPin(ctx, id, pin); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return domain.StorageFailure(err)
	}

	s.log.Info().Str("account_id", id).Msg("account deleted")
	return nil
}

// History returns the entries of a live account, oldest first.
func (s *LedgerServiceImpl) History(ctx context.Context, id string) (iter.Seq2[domain.LedgerEntry, error], error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, domain.StorageFailure(err)
	}
	entries := s.store.EntriesFor(ctx, id)
	return func(yield func(domain.LedgerEntry, error) bool) {
		for e, err := range entries {
			if !yield(e, domain.StorageFailure(err)) {
				return
			}
		}
	}, nil
}

// ExportHistory renders the history of id in format.
func (s *LedgerServiceImpl) ExportHistory(ctx context.Context, id string, format export.Format) ([]byte, error) {
	entries, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}

	records := []export.Record{}
	for e, err := range entries {
		if err != nil {
			return nil, err
		}
		records = append(records, export.FromEntry(e))
	}

	data, err := export.Encode(format, records)
	if err != nil {
		return nil, fmt.Errorf("export history: %w", err)
	}
	return data, nil
}

// lock acquires ids and reports any failure as a storage failure.
func (s *LedgerServiceImpl) lock(ctx context.Context, ids ...string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, ids...)
	if err != nil {
		return nil, domain.StorageFailure(fmt.Errorf("lock accounts: %w", err))
	}
	return unlock, nil
}

// checkPin loads id and verifies pin against it. The caller holds the lock.
func (s *LedgerServiceImpl) checkPin(ctx context.Context, id, pin string) error {
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.StorageFailure(err)
	}
	ok, err := s.hasher.Verify(pin, acc.PinHash)
	if err != nil {
		return domain.StorageFailure(fmt.Errorf("verify pin: %w", err))
	}
	if !ok {
		return domain.ErrWrongPin
	}
	return nil
}

// timestamp returns now in UTC at microsecond precision, the finest
// resolution every store keeps.
func (s *LedgerServiceImpl) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func credit(amount money.Amount) func(*domain.Account) error {
	return func(a *domain.Account) error {
		b, ok := a.Balance.Add(amount)
		if !ok {
			return domain.ErrInvalidAmount
		}
		a.Balance = b
		return nil
	}
}

func debit(amount money.Amount) func(*domain.Account) error {
	return func(a *domain.Account) error {
		if a.Balance < amount {
			return domain.ErrInsufficientFunds
		}
		a.Balance -= amount
		return nil
	}
}
