package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"

	"github.com/go-redsync/redsync/v4"
	rsgoredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	maxLockTries   = 1000
	releaseTimeout = 2 * time.Second
)

var (
	ErrLockExpiryInvalid      = errors.New("lock expiry must be greater than 0")
	ErrLockTriesInvalid       = errors.New("lock tries must be between 1 and 1000")
	ErrLockRetryDelayNegative = errors.New("lock retry delay cannot be negative")
)

// LockOptions configures how long a lock lives and how hard Lock tries.
type LockOptions struct {
	// Expiry bounds how long a crashed holder can block an account.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultLockOptions suits short ledger operations.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 50 * time.Millisecond,
	}
}

func (o LockOptions) validate() error {
	if o.Expiry <= 0 {
		return ErrLockExpiryInvalid
	}
	if o.Tries < 1 || o.Tries > maxLockTries {
		return ErrLockTriesInvalid
	}
	if o.RetryDelay < 0 {
		return ErrLockRetryDelayNegative
	}
	return nil
}

// AccountLocker is a ports.AccountLocker backed by the RedLock algorithm, so
// several server instances sharing one store never interleave mutations of
// the same account.
type AccountLocker struct {
	rs   *redsync.Redsync
	opts LockOptions
	log  zerolog.Logger
}

var _ ports.AccountLocker = (*AccountLocker)(nil)

// NewAccountLocker creates a distributed account locker.
func NewAccountLocker(client *goredis.Client, opts LockOptions, log zerolog.Logger) (*AccountLocker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &AccountLocker{
		rs:   redsync.New(rsgoredis.NewPool(client)),
		opts: opts,
		log:  log,
	}, nil
}

// LockKey is the Redis key guarding account id.
func LockKey(id string) string {
	return "lock:account:" + id
}

// Lock acquires ids in sorted order. If any acquisition fails, the locks
// already taken are released before returning.
func (l *AccountLocker) Lock(ctx context.Context, ids ...string) (func(), error) {
	order := domain.LockOrder(ids...)
	held := make([]*redsync.Mutex, 0, len(order))

	for _, id := range order {
		m := l.rs.NewMutex(
			LockKey(id),
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			l.release(held)
			l.log.Warn().Err(err).Str("account_id", id).Msg("failed to acquire account lock")
			return nil, fmt.Errorf("acquire lock for %q: %w", id, err)
		}
		held = append(held, m)
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(held) }) }, nil
}

// release unlocks in reverse order on a fresh context: the caller's context
// may already be canceled, and an unreleased lock blocks the account until
// it expires.
func (l *AccountLocker) release(held []*redsync.Mutex) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		ok, err := held[i].UnlockContext(ctx)
		if err != nil || !ok {
			l.log.Warn().
				Err(err).
				Str("lock_key", held[i].Name()).
				Bool("unlock_ok", ok).
				Msg("failed to release account lock")
		}
	}
}
