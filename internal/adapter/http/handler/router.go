package handler

import (
	"pin-ledger/internal/adapter/http/middleware"
	"pin-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger           ports.LedgerService
	AuthSvc          ports.AuthService
	ReportingSvc     ports.ReportingService
	TokenSvc         ports.TokenService
	Sessions         ports.SessionStore     // nil = logout does not revoke tokens
	RateLimiter      ports.RateLimiter      // nil = rate limiting disabled
	IdempotencyCache ports.IdempotencyCache // nil = no idempotent replay
	AuditSvc         ports.AuditService     // nil = audit logging disabled
	HealthCheckers   []ports.HealthChecker
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if a limiter is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	idem := func(c *gin.Context) { c.Next() }
	if deps.IdempotencyCache != nil {
		idem = middleware.Idempotency(deps.IdempotencyCache, middleware.DefaultIdempotencyTTL, deps.Logger)
	}

	v1 := r.Group("/api/v1")
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Sessions, deps.Logger)

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.Ledger, deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), idem, authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
		auth.POST("/logout", jwtAuth, authHandler.Logout)
	}

	// --- JWT-authenticated routes ---
	accountHandler := NewAccountHandler(deps.Ledger)
	historyHandler := NewHistoryHandler(deps.Ledger, deps.ReportingSvc)

	me := v1.Group("/accounts/me", jwtAuth)
	{
		me.GET("", rl("reads"), accountHandler.Get)
		me.POST("/deposit", rl("mutations"), idem, accountHandler.Deposit)
		me.POST("/withdraw", rl("mutations"), idem, accountHandler.Withdraw)
		me.POST("/transfer", rl("mutations"), idem, accountHandler.Transfer)
		me.DELETE("", rl("mutations"), accountHandler.Delete)

		me.GET("/transactions", rl("reads"), historyHandler.Transactions)
		me.GET("/export", rl("reads"), historyHandler.Export)
		me.GET("/summary", rl("reads"), historyHandler.Summary)
	}

	return r
}
