// Package legacy imports the users.json and transactions.json files of the
// previous PIN banking application into an AccountStore.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/pkg/money"

	"github.com/rs/zerolog"
)

// DateLayout is the timestamp format of legacy transactions.
const DateLayout = "2006-01-02 15:04:05"

// User is one value of the legacy users.json object, keyed by account name.
type User struct {
	Pin     string  `json:"pin"` // Unsalted SHA-256 hex digest
	Balance float64 `json:"balance"`
}

// Transaction is one element of the legacy transactions.json array.
type Transaction struct {
	User   string  `json:"user"`
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
	Target *string `json:"target"`
	Date   string  `json:"date"`
}

// Data is a decoded pair of legacy files.
type Data struct {
	Users        map[string]User
	Transactions []Transaction
}

// Decode reads both legacy files.
func Decode(users, transactions io.Reader) (*Data, error) {
	d := &Data{}
	if err := json.NewDecoder(users).Decode(&d.Users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	if err := json.NewDecoder(transactions).Decode(&d.Transactions); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	return d, nil
}

// Options tune an import.
type Options struct {
	// Location interprets legacy dates, which carry no zone.
	Location *time.Location
	// ValidateID rejects account names the ledger would not accept.
	ValidateID func(id string) error
	Now        func() time.Time
}

// Result counts what an import did.
type Result struct {
	Accounts       int
	Entries        int
	SkippedUsers   []string
	SkippedEntries int
}

// Importer loads legacy data into a store.
type Importer struct {
	store ports.AccountStore
	opts  Options
	log   zerolog.Logger
}

// NewImporter creates an Importer. Zero options default to local time, no
// id validation and time.Now.
func NewImporter(store ports.AccountStore, opts Options, log zerolog.Logger) *Importer {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ValidateID == nil {
		opts.ValidateID = func(string) error { return nil }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Importer{store: store, opts: opts, log: log}
}

// Import writes every account and entry of d in one store transaction.
// Accounts keep their legacy PIN digest, which the ledger upgrades at the
// next successful login. Entries whose owner is not imported, or that cannot
// be read, are skipped and counted. An account that already exists in the
// store aborts the whole import.
func (im *Importer) Import(ctx context.Context, d *Data) (*Result, error) {
	res := &Result{}
	imported := make(map[string]bool, len(d.Users))

	names := make([]string, 0, len(d.Users))
	for name := range d.Users {
		names = append(names, name)
	}
	slices.Sort(names)

	err := im.store.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		for _, name := range names {
			u := d.Users[name]
			balance, err := money.FromFloat(u.Balance)
			if err != nil || balance < 0 || im.opts.ValidateID(name) != nil || u.Pin == "" {
				res.SkippedUsers = append(res.SkippedUsers, name)
				im.log.Warn().Str("account_id", name).Msg("legacy user skipped")
				continue
			}

			if _, err := tx.Create(ctx, name, strings.ToLower(u.Pin)); err != nil {
				return fmt.Errorf("creating %q: %w", name, err)
			}
			if balance > 0 {
				_, err := tx.Update(ctx, name, func(a *domain.Account) error {
					a.Balance = balance
					return nil
				})
				if err != nil {
					return fmt.Errorf("setting balance of %q: %w", name, err)
				}
			}
			imported[name] = true
			res.Accounts++
		}

		for i, t := range d.Transactions {
			entry, ok := im.entry(t, imported)
			if !ok {
				res.SkippedEntries++
				im.log.Debug().Int("index", i).Str("user", t.User).Msg("legacy transaction skipped")
				continue
			}
			if err := tx.AppendEntry(ctx, entry); err != nil {
				return fmt.Errorf("appending transaction %d: %w", i, err)
			}
			res.Entries++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// entry converts t, reporting false when it cannot be kept.
func (im *Importer) entry(t Transaction, imported map[string]bool) (domain.LedgerEntry, bool) {
	if !imported[t.User] {
		return domain.LedgerEntry{}, false
	}

	kind := domain.EntryKind(t.Type)
	if !kind.Valid() {
		return domain.LedgerEntry{}, false
	}
	amount, err := money.FromFloat(t.Amount)
	if err != nil || amount <= 0 {
		return domain.LedgerEntry{}, false
	}

	var counterparty string
	if kind.IsTransfer() {
		if t.Target == nil || *t.Target == "" {
			return domain.LedgerEntry{}, false
		}
		// The counterparty may since have been deleted; the name is kept.
		counterparty = *t.Target
	}

	at, err := time.ParseInLocation(DateLayout, t.Date, im.opts.Location)
	if err != nil {
		at = im.opts.Now()
	}
	return domain.NewEntry(t.User, kind, amount, counterparty, at.UTC().Truncate(time.Microsecond)), true
}
