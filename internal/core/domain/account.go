package domain

import (
	"slices"
	"time"

	"pin-ledger/pkg/money"
)

// Account is a named balance guarded by a PIN.
type Account struct {
	ID        string       `json:"id"`
	PinHash   string       `json:"-"` // Never expose
	Balance   money.Amount `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// IsClosed returns true once the account has been deleted. A closed account
// keeps its id reserved and its ledger entries, but accepts no operation.
func (a *Account) IsClosed() bool {
	return a.ClosedAt != nil
}

// Close tombstones the account at t and drops its credentials.
func (a *Account) Close(t time.Time) {
	a.ClosedAt = &t
	a.PinHash = ""
	a.UpdatedAt = t
}

// Clone returns a deep copy safe to mutate.
func (a *Account) Clone() *Account {
	c := *a
	if a.ClosedAt != nil {
		t := *a.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// LockOrder returns ids sorted with duplicates removed. Every component that
// holds more than one account at a time acquires them in this order.
func LockOrder(ids ...string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
