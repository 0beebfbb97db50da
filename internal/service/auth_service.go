package service

import (
	"context"
	"fmt"
	"time"

	"pin-ledger/internal/core/ports"
	"pin-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService on top of the ledger's PIN
// check.
type AuthServiceImpl struct {
	ledger   ports.LedgerService
	tokenSvc ports.TokenService
	sessions ports.SessionStore // nil disables revocation
	log      zerolog.Logger
}

var _ ports.AuthService = (*AuthServiceImpl)(nil)

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	ledger ports.LedgerService,
	tokenSvc ports.TokenService,
	sessions ports.SessionStore,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		ledger:   ledger,
		tokenSvc: tokenSvc,
		sessions: sessions,
		log:      log,
	}
}

// Login checks the PIN and returns a session token.
func (s *AuthServiceImpl) Login(ctx context.Context, id, pin string) (string, time.Time, error) {
	ok, err := s.ledger.Authenticate(ctx, id, pin)
	if err != nil {
		if appErr := apperror.FromDomain(err); appErr != nil {
			return "", time.Time{}, appErr
		}
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("authenticate: %w", err))
	}
	if !ok {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, claims, err := s.tokenSvc.Generate(id)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().Str("account_id", id).Msg("login succeeded")
	return token, claims.ExpiresAt, nil
}

// Logout revokes the session until its natural expiry.
func (s *AuthServiceImpl) Logout(ctx context.Context, claims *ports.TokenClaims) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.TokenID, time.Until(claims.ExpiresAt)); err != nil {
		return apperror.InternalError(fmt.Errorf("revoke session: %w", err))
	}
	s.log.Info().Str("account_id", claims.AccountID).Msg("session revoked")
	return nil
}
