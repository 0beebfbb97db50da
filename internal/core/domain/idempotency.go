package domain

import "time"

// IdempotentResponse is a cached HTTP response replayed for a repeated
// Idempotency-Key.
type IdempotentResponse struct {
	RequestHash string    `json:"request_hash"` // Hex SHA-256 of the original request body
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// BuildIdempotencyKey scopes a client key to the caller and the route so two
// accounts, or two endpoints, never share a cached response.
func BuildIdempotencyKey(accountID, route, clientKey string) string {
	return accountID + ":" + route + ":" + clientKey
}
