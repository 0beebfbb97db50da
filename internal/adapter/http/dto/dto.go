package dto

import (
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/pkg/money"
)

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	ID  string `json:"id" binding:"required,account_id"`
	Pin string `json:"pin" binding:"required,pin_digits"`
}

// LoginRequest is the request body for login. Empty fields are not a
// binding error: they fail authentication like any other wrong credential.
type LoginRequest struct {
	ID  string `json:"id" binding:"max=64"`
	Pin string `json:"pin" binding:"max=64"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DepositRequest is the request body for a deposit. A missing or
// non-positive amount is rejected by the ledger as an invalid amount.
type DepositRequest struct {
	Amount money.Amount `json:"amount"`
}

// WithdrawRequest is the request body for a withdrawal.
type WithdrawRequest struct {
	Amount money.Amount `json:"amount"`
	Pin    string       `json:"pin"`
}

// TransferRequest is the request body for a transfer.
type TransferRequest struct {
	To     string       `json:"to"`
	Amount money.Amount `json:"amount"`
	Pin    string       `json:"pin"`
}

// DeleteAccountRequest is the request body for account deletion.
type DeleteAccountRequest struct {
	Pin string `json:"pin"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string       `json:"id"`
	Balance   money.Amount `json:"balance"`
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
}

// NewAccountResponse converts a domain account.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// EntryResponse is the public view of a ledger entry.
type EntryResponse struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Amount       money.Amount `json:"amount"`
	Counterparty string       `json:"counterparty,omitempty"`
	Timestamp    string       `json:"timestamp"`
}

// NewEntryResponse converts a ledger entry.
func NewEntryResponse(e domain.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:           e.ID.String(),
		Type:         string(e.Kind),
		Amount:       e.Amount,
		Counterparty: e.Counterparty,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// EntryListResponse wraps a paginated entry list.
type EntryListResponse struct {
	Entries  []EntryResponse `json:"entries"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// SummaryResponse is the per-kind totals of an account history.
type SummaryResponse struct {
	Entries        int64        `json:"entries"`
	TotalDeposited money.Amount `json:"total_deposited"`
	TotalWithdrawn money.Amount `json:"total_withdrawn"`
	TotalSent      money.Amount `json:"total_sent"`
	TotalReceived  money.Amount `json:"total_received"`
}
