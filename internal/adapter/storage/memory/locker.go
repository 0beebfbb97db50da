package memory

import (
	"context"
	"sync"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
)

// KeyedLocker is an in-process ports.AccountLocker: one mutex per account
// id, created on demand and dropped once nobody holds or waits for it.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

var _ ports.AccountLocker = (*KeyedLocker)(nil)

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock acquires ids in sorted order. On failure every lock taken so far is
// released and ctx's error is returned.
func (l *KeyedLocker) Lock(ctx context.Context, ids ...string) (func(), error) {
	order := domain.LockOrder(ids...)
	held := make([]string, 0, len(order))

	for _, id := range order {
		if err := l.acquire(ctx, id); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *KeyedLocker) acquire(ctx context.Context, id string) error {
	l.mu.Lock()
	k, ok := l.locks[id]
	if !ok {
		k = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[id] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(id, k)
		return ctx.Err()
	}
}

func (l *KeyedLocker) releaseAll(ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		l.mu.Lock()
		k := l.locks[ids[i]]
		l.mu.Unlock()

		<-k.sem
		l.unref(ids[i], k)
	}
}

func (l *KeyedLocker) unref(id string, k *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many ids currently have a lock entry.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
