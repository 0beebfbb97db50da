package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pin-ledger/config"
	httpHandler "pin-ledger/internal/adapter/http/handler"
	"pin-ledger/internal/adapter/storage/memory"
	redisStorage "pin-ledger/internal/adapter/storage/redis"
	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/internal/export"
	"pin-ledger/internal/service"
	"pin-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the real HTTP layer, services and memory store together,
// with Redis-backed middleware running against miniredis.
type testApp struct {
	server *httptest.Server
	redis  *miniredis.Miniredis
	audit  *service.AuditServiceImpl
	trail  *recordingAuditRepo
}

type recordingAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *recordingAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *recordingAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

var _ ports.AuditRepository = (*recordingAuditRepo)(nil)

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewWithWriter("error", io.Discard)
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	hasher := service.NewArgon2HashService(config.HashConfig{Memory: 1024, Time: 1, Threads: 1})
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")
	sessions := redisStorage.NewSessionStore(rdb)

	ledger := service.NewLedgerService(store, memory.NewKeyedLocker(), hasher,
		config.LedgerConfig{PinLength: 4, MaxAccountIDLength: 32}, log)
	trail := &recordingAuditRepo{}
	audit := service.NewAuditService(trail, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:           ledger,
		AuthSvc:          service.NewAuthService(ledger, tokenSvc, sessions, log),
		ReportingSvc:     service.NewReportingService(ledger),
		TokenSvc:         tokenSvc,
		Sessions:         sessions,
		RateLimiter:      redisStorage.NewRateLimitStore(rdb),
		IdempotencyCache: redisStorage.NewIdempotencyCache(rdb),
		AuditSvc:         audit,
		HealthCheckers:   []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		Logger:           log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testApp{server: server, redis: mr, audit: audit, trail: trail}
}

type apiResponse struct {
	status int
	header http.Header
	raw    []byte
	Data   json.RawMessage `json:"data"`
	Code   string          `json:"error_code"`
}

func (a *testApp) do(t *testing.T, method, path, token, body string, headers ...string) apiResponse {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := apiResponse{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(raw) > 0 && bytes.HasPrefix(raw, []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return out
}

// signup registers id with pin and returns a session token.
func (a *testApp) signup(t *testing.T, id, pin string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/auth/register", "", fmt.Sprintf(`{"id":%q,"pin":%q}`, id, pin))
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))
	return a.login(t, id, pin)
}

func (a *testApp) login(t *testing.T, id, pin string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/auth/login", "", fmt.Sprintf(`{"id":%q,"pin":%q}`, id, pin))
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.Token
}

func (a *testApp) balance(t *testing.T, token string) string {
	t.Helper()
	resp := a.do(t, http.MethodGet, "/api/v1/accounts/me", token, "")
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	var data struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.Balance
}

func TestAPI_FullFlow(t *testing.T) {
	app := newTestApp(t)

	alice := app.signup(t, "alice", "1234")
	bob := app.signup(t, "bob", "4321")

	resp := app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"100.00"}`)
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))

	resp = app.do(t, http.MethodPost, "/api/v1/accounts/me/withdraw", alice, `{"amount":"40","pin":"1234"}`)
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	assert.Equal(t, "60.00", app.balance(t, alice))

	resp = app.do(t, http.MethodPost, "/api/v1/accounts/me/transfer", alice, `{"to":"bob","amount":"50","pin":"1234"}`)
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	assert.Equal(t, "10.00", app.balance(t, alice))
	assert.Equal(t, "50.00", app.balance(t, bob))

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me/transactions", alice, "")
	require.Equal(t, http.StatusOK, resp.status)
	var list struct {
		Entries []struct {
			Type         string `json:"type"`
			Amount       string `json:"amount"`
			Counterparty string `json:"counterparty"`
		} `json:"entries"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Equal(t, 3, list.Total)
	assert.Equal(t, "deposit", list.Entries[0].Type)
	assert.Equal(t, "withdraw", list.Entries[1].Type)
	assert.Equal(t, "transfer_out", list.Entries[2].Type)
	assert.Equal(t, "bob", list.Entries[2].Counterparty)

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me/summary", bob, "")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.Data), `"total_received":"50.00"`)

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me/export?format=csv", alice, "")
	require.Equal(t, http.StatusOK, resp.status)
	records, err := export.Decode(export.FormatCSV, resp.raw)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, domain.EntryTransferOut, records[2].Type)
	assert.Equal(t, "bob", records[2].Counterparty)
}

func TestAPI_LedgerErrors(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice", "1234")
	app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"10"}`)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"zero deposit", "/api/v1/accounts/me/deposit", `{"amount":"0"}`, http.StatusBadRequest, "LED_001"},
		{"wrong pin", "/api/v1/accounts/me/withdraw", `{"amount":"1","pin":"0000"}`, http.StatusForbidden, "AUTH_002"},
		{"overdraw", "/api/v1/accounts/me/withdraw", `{"amount":"1000","pin":"1234"}`, http.StatusPaymentRequired, "LED_002"},
		{"to self", "/api/v1/accounts/me/transfer", `{"to":"alice","amount":"1","pin":"1234"}`, http.StatusUnprocessableEntity, "LED_003"},
		{"unknown recipient", "/api/v1/accounts/me/transfer", `{"to":"ghost","amount":"1","pin":"1234"}`, http.StatusNotFound, "ACC_002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := app.do(t, http.MethodPost, tt.path, alice, tt.body)
			assert.Equal(t, tt.status, resp.status, string(resp.raw))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
	assert.Equal(t, "10.00", app.balance(t, alice))
}

func TestAPI_RegisterConflictAndLogin(t *testing.T) {
	app := newTestApp(t)
	app.signup(t, "alice", "1234")

	resp := app.do(t, http.MethodPost, "/api/v1/auth/register", "", `{"id":"alice","pin":"9999"}`)
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "ACC_001", resp.Code)

	for _, body := range []string{`{"id":"alice","pin":"9999"}`, `{"id":"nobody","pin":"1234"}`} {
		resp = app.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.status)
		assert.Equal(t, "AUTH_001", resp.Code)
	}
	app.login(t, "alice", "1234")
}

func TestAPI_Unauthenticated(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodGet, "/api/v1/accounts/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "AUTH_003", resp.Code)
}

func TestAPI_LogoutRevokesToken(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "alice", "1234")

	resp := app.do(t, http.MethodPost, "/api/v1/auth/logout", token, "")
	require.Equal(t, http.StatusNoContent, resp.status)

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	fresh := app.login(t, "alice", "1234")
	assert.Equal(t, "0.00", app.balance(t, fresh))
}

func TestAPI_DeleteAccount(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice", "1234")
	bob := app.signup(t, "bob", "4321")
	app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"5"}`)
	app.do(t, http.MethodPost, "/api/v1/accounts/me/transfer", alice, `{"to":"bob","amount":"5","pin":"1234"}`)

	resp := app.do(t, http.MethodDelete, "/api/v1/accounts/me", alice, `{"pin":"1234"}`)
	require.Equal(t, http.StatusNoContent, resp.status, string(resp.raw))

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me", alice, "")
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = app.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"id":"alice","pin":"1234"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = app.do(t, http.MethodPost, "/api/v1/auth/register", "", `{"id":"alice","pin":"1234"}`)
	assert.Equal(t, http.StatusConflict, resp.status, "deleted ids stay reserved")

	resp = app.do(t, http.MethodGet, "/api/v1/accounts/me/transactions", bob, "")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.Data), `"counterparty":"alice"`)
}

func TestAPI_IdempotentDeposit(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice", "1234")

	for range 3 {
		resp := app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"7.50"}`, "Idempotency-Key", "dep-1")
		require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	}
	assert.Equal(t, "7.50", app.balance(t, alice))

	resp := app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"8"}`, "Idempotency-Key", "dep-1")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "IDEM_002", resp.Code)
}

func TestAPI_RegisterRateLimited(t *testing.T) {
	app := newTestApp(t)

	for i := range 5 {
		resp := app.do(t, http.MethodPost, "/api/v1/auth/register", "", fmt.Sprintf(`{"id":"user%d","pin":"1234"}`, i))
		require.Equal(t, http.StatusCreated, resp.status)
	}
	resp := app.do(t, http.MethodPost, "/api/v1/auth/register", "", `{"id":"user5","pin":"1234"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, "RATE_001", resp.Code)
	assert.NotEmpty(t, resp.header.Get("Retry-After"))
}

func TestAPI_AuditTrail(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice", "1234")
	app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"1"}`)
	app.do(t, http.MethodPost, "/api/v1/accounts/me/withdraw", alice, `{"amount":"5","pin":"1234"}`) // fails

	app.audit.Wait()
	assert.ElementsMatch(t,
		[]domain.AuditAction{domain.AuditActionRegister, domain.AuditActionLogin, domain.AuditActionDeposit},
		app.trail.actions())
}

func TestAPI_Health(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.status)

	app.redis.Close()
	resp = app.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Contains(t, string(resp.raw), `"memory":{"status":"healthy"}`)
}

// TestAPI_ConcurrentTransfers runs opposing transfers and racing withdraws
// through the HTTP layer. Money is conserved and no balance goes negative.
func TestAPI_ConcurrentTransfers(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice", "1234")
	bob := app.signup(t, "bob", "4321")
	app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", alice, `{"amount":"10.00"}`)
	app.do(t, http.MethodPost, "/api/v1/accounts/me/deposit", bob, `{"amount":"10.00"}`)

	type call struct{ token, body string }
	calls := []call{
		{alice, `{"to":"bob","amount":"1","pin":"1234"}`},
		{bob, `{"to":"alice","amount":"1","pin":"4321"}`},
	}

	var wg sync.WaitGroup
	for i := range 20 {
		c := calls[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/accounts/me/transfer", strings.NewReader(c.body))
			req.Header.Set("Authorization", "Bearer "+c.token)
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	a, b := app.balance(t, alice), app.balance(t, bob)
	assert.False(t, strings.HasPrefix(a, "-"))
	assert.False(t, strings.HasPrefix(b, "-"))

	var sum struct{ A, B float64 }
	_, err := fmt.Sscanf(a+" "+b, "%f %f", &sum.A, &sum.B)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, sum.A+sum.B, 0.001)
}
