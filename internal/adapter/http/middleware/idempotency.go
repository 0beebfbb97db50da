package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"regexp"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/pkg/apperror"
	"pin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	HeaderIdempotentReplay  = "Idempotent-Replayed"
	DefaultIdempotencyTTL   = 24 * time.Hour
	idempotencyReserveTTL   = 30 * time.Second
	idempotencyKeyMaxLength = 64
)

var idempotencyKeyRe = regexp.MustCompile(`^[A-Za-z0-9\-_.:]+$`)

// Idempotency replays the stored response of a POST whose Idempotency-Key
// was already seen for the same account and route. Requests without the
// header pass through. Server errors are not stored so the client may retry.
func Idempotency(cache ports.IdempotencyCache, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetHeader(HeaderIdempotencyKey)
		if c.Request.Method != http.MethodPost || clientKey == "" {
			c.Next()
			return
		}
		if len(clientKey) > idempotencyKeyMaxLength || !idempotencyKeyRe.MatchString(clientKey) {
			response.Error(c, apperror.Validation("invalid Idempotency-Key header"))
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		requestHash := hex.EncodeToString(sum[:])

		key := domain.BuildIdempotencyKey(idempotencyScope(c), c.FullPath(), clientKey)
		ctx := c.Request.Context()

		cached, err := cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed, processing request")
			c.Next()
			return
		}
		if cached != nil {
			replay(c, cached, requestHash)
			return
		}

		reserved, err := cache.Reserve(ctx, key, idempotencyReserveTTL)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency reservation failed, processing request")
			c.Next()
			return
		}
		if !reserved {
			response.Error(c, apperror.ErrRequestInFlight())
			c.Abort()
			return
		}
		defer func() {
			if err := cache.Release(ctx, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency reservation")
			}
		}()

		// The original request may have completed between the lookup and
		// the reservation.
		cached, err = cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed, processing request")
		} else if cached != nil {
			replay(c, cached, requestHash)
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return
		}
		err = cache.Put(ctx, key, &domain.IdempotentResponse{
			RequestHash: requestHash,
			StatusCode:  status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			CreatedAt:   time.Now().UTC(),
		}, ttl)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
		}
	}
}

// idempotencyScope is the authenticated account, or the client IP on
// routes without authentication. Account ids cannot contain ':'.
func idempotencyScope(c *gin.Context) string {
	if id, ok := AccountID(c); ok {
		return id
	}
	return "ip:" + c.ClientIP()
}

func replay(c *gin.Context, cached *domain.IdempotentResponse, requestHash string) {
	if cached.RequestHash != requestHash {
		response.Error(c, apperror.ErrIdempotencyKeyReused())
		c.Abort()
		return
	}
	c.Header(HeaderIdempotentReplay, "true")
	c.Data(cached.StatusCode, cached.ContentType, cached.Body)
	c.Abort()
}

// bodyRecorder tees the response body so it can be stored for replay.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}
