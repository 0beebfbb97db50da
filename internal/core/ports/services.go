package ports

import (
	"context"
	"iter"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/export"
	"pin-ledger/pkg/money"
)

// PinHasher handles one-way PIN digests.
type PinHasher interface {
	Hash(pin string) (string, error)
	Verify(pin string, hash string) (bool, error)
	// NeedsRehash reports whether hash was produced by an outdated scheme.
	NeedsRehash(hash string) bool
}

// TokenService handles JWT session tokens.
type TokenService interface {
	Generate(accountID string) (string, *TokenClaims, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID string
	TokenID   string
	ExpiresAt time.Time
}

// SessionStore tracks revoked session tokens until they expire.
type SessionStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// IdempotencyCache stores replayable responses keyed by Idempotency-Key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (*domain.IdempotentResponse, error) // Returns nil on miss
	Put(ctx context.Context, key string, resp *domain.IdempotentResponse, ttl time.Duration) error
	// Reserve marks key as in flight. It returns false if another request
	// already holds the reservation.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --- Service Ports (Business Logic) ---

// LedgerService moves money between accounts. Every operation is atomic
// with respect to concurrent callers.
type LedgerService interface {
	Register(ctx context.Context, id, pin string) (*domain.Account, error)
	Authenticate(ctx context.Context, id, pin string) (bool, error)
	Balance(ctx context.Context, id string) (*domain.Account, error)
	Deposit(ctx context.Context, id string, amount money.Amount) (*domain.Account, error)
	Withdraw(ctx context.Context, id string, amount money.Amount, pin string) (*domain.Account, error)
	Transfer(ctx context.Context, from, to string, amount money.Amount, pin string) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id, pin string) error
	History(ctx context.Context, id string) (iter.Seq2[domain.LedgerEntry, error], error)
	ExportHistory(ctx context.Context, id string, format export.Format) ([]byte, error)
}

// AuthService issues and revokes sessions.
type AuthService interface {
	Login(ctx context.Context, id, pin string) (string, time.Time, error) // token, expiry, error
	Logout(ctx context.Context, claims *TokenClaims) error
}

// ReportingService defines history reporting.
type ReportingService interface {
	Summary(ctx context.Context, id string) (*domain.EntrySummary, error)
	ListEntries(ctx context.Context, params EntryListParams) ([]domain.LedgerEntry, int, error)
}

// EntryListParams holds filter + pagination for listing ledger entries.
type EntryListParams struct {
	AccountID string
	Kind      *domain.EntryKind
	Newest    bool // newest first
	Page      int
	PageSize  int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize defaults Page to 1 and PageSize to DefaultPageSize, and caps
// PageSize at MaxPageSize.
func (p EntryListParams) Normalize() EntryListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	p.PageSize = min(p.PageSize, MaxPageSize)
	return p
}

// AuditService records security-relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}
