package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/internal/core/ports/mocks"
	"pin-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupAuthService(t *testing.T) (
	*AuthServiceImpl,
	*mocks.MockLedgerService,
	*mocks.MockTokenService,
	*mocks.MockSessionStore,
) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	svc := NewAuthService(ledger, tokenSvc, sessions, zerolog.Nop())
	return svc, ledger, tokenSvc, sessions
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, ledger, tokenSvc, _ := setupAuthService(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	ledger.EXPECT().Authenticate(ctx, "alice", "1234").Return(true, nil)
	tokenSvc.EXPECT().Generate("alice").Return("jwt-token", &ports.TokenClaims{
		AccountID: "alice",
		TokenID:   "jti-1",
		ExpiresAt: expiry,
	}, nil)

	token, exp, err := svc.Login(ctx, "alice", "1234")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
	assert.Equal(t, expiry, exp)
}

func TestAuthService_Login_WrongPin(t *testing.T) {
	svc, ledger, _, _ := setupAuthService(t)

	ledger.EXPECT().Authenticate(gomock.Any(), "alice", "0000").Return(false, nil)

	_, _, err := svc.Login(context.Background(), "alice", "0000")
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AUTH_001", appErr.Code)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestAuthService_Login_StorageFailure(t *testing.T) {
	svc, ledger, _, _ := setupAuthService(t)

	ledger.EXPECT().Authenticate(gomock.Any(), "alice", "1234").
		Return(false, domain.StorageFailure(errors.New("db down")))

	_, _, err := svc.Login(context.Background(), "alice", "1234")
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SYS_001", appErr.Code)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestAuthService_Login_TokenError(t *testing.T) {
	svc, ledger, tokenSvc, _ := setupAuthService(t)

	ledger.EXPECT().Authenticate(gomock.Any(), "alice", "1234").Return(true, nil)
	tokenSvc.EXPECT().Generate("alice").Return("", nil, errors.New("sign failed"))

	_, _, err := svc.Login(context.Background(), "alice", "1234")
	assert.Error(t, err)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, _, sessions := setupAuthService(t)
	claims := &ports.TokenClaims{AccountID: "alice", TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}

	sessions.EXPECT().Revoke(gomock.Any(), "jti-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, ttl time.Duration) error {
			assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
			return nil
		})

	assert.NoError(t, svc.Logout(context.Background(), claims))
}

func TestAuthService_Logout_StoreError(t *testing.T) {
	svc, _, _, sessions := setupAuthService(t)

	sessions.EXPECT().Revoke(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	err := svc.Logout(context.Background(), &ports.TokenClaims{TokenID: "x", ExpiresAt: time.Now().Add(time.Minute)})
	assert.Error(t, err)
}

func TestAuthService_Logout_WithoutSessionStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := NewAuthService(mocks.NewMockLedgerService(ctrl), mocks.NewMockTokenService(ctrl), nil, zerolog.Nop())

	assert.NoError(t, svc.Logout(context.Background(), &ports.TokenClaims{TokenID: "x"}))
}
