package domain

import (
	"time"

	"pin-ledger/pkg/money"

	"github.com/google/uuid"
)

// EntryKind is the kind of balance movement a ledger entry records.
type EntryKind string

const (
	EntryDeposit     EntryKind = "deposit"
	EntryWithdraw    EntryKind = "withdraw"
	EntryTransferOut EntryKind = "transfer_out"
	EntryTransferIn  EntryKind = "transfer_in"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryWithdraw, EntryTransferOut, EntryTransferIn:
		return true
	}
	return false
}

// IsTransfer returns true for the two legs of a transfer.
func (k EntryKind) IsTransfer() bool {
	return k == EntryTransferOut || k == EntryTransferIn
}

// LedgerEntry is an immutable record of one balance movement.
type LedgerEntry struct {
	ID           uuid.UUID    `json:"id"`
	AccountID    string       `json:"account_id"`
	Kind         EntryKind    `json:"type"`
	Amount       money.Amount `json:"amount"` // Always positive
	Counterparty string       `json:"counterparty,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewEntry builds an entry with a fresh id.
func NewEntry(accountID string, kind EntryKind, amount money.Amount, counterparty string, at time.Time) LedgerEntry {
	return LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		Kind:         kind,
		Amount:       amount,
		Counterparty: counterparty,
		Timestamp:    at,
	}
}

// TransferPair builds the matching out/in entries for a transfer. Both legs
// share the amount and the timestamp.
func TransferPair(from, to string, amount money.Amount, at time.Time) (out, in LedgerEntry) {
	out = NewEntry(from, EntryTransferOut, amount, to, at)
	in = NewEntry(to, EntryTransferIn, amount, from, at)
	return out, in
}

// EntrySummary aggregates an account's history per entry kind.
type EntrySummary struct {
	AccountID      string       `json:"account_id"`
	Entries        int64        `json:"entries"`
	TotalDeposited money.Amount `json:"total_deposited"`
	TotalWithdrawn money.Amount `json:"total_withdrawn"`
	TotalSent      money.Amount `json:"total_sent"`
	TotalReceived  money.Amount `json:"total_received"`
}
