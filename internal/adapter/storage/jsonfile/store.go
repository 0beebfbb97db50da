// Package jsonfile is an AccountStore persisted as one JSON snapshot file.
//
// Every commit rewrites the whole file through a temp file, fsync and
// rename, so the file on disk is always either the old or the new state.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"pin-ledger/internal/adapter/storage/memory"
	"pin-ledger/internal/core/domain"
	"pin-ledger/pkg/money"

	"github.com/rs/zerolog"
)

// FormatVersion is written into every snapshot.
const FormatVersion = 1

// Meta describes a snapshot file.
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the on-disk layout.
type Snapshot struct {
	Meta     Meta                 `json:"_meta"`
	Accounts []PersistAccount     `json:"accounts"`
	Entries  []domain.LedgerEntry `json:"entries"`
}

// PersistAccount is domain.Account with the PIN hash serialized.
type PersistAccount struct {
	ID        string       `json:"id"`
	PinHash   string       `json:"pin_hash"`
	Balance   money.Amount `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// Store is a memory.Store whose commits are written to path first.
type Store struct {
	*memory.Store
	path string
	log  zerolog.Logger
}

// Open loads path, or starts empty if it does not exist yet.
func Open(path string, log zerolog.Logger, opts ...memory.Option) (*Store, error) {
	snap, err := LoadSnapshot(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading snapshot %s: %w", path, err)
	}

	s := &Store{path: path, log: log}
	opts = append(opts,
		memory.WithState(snap.state()),
		memory.WithCommitHook(s.persist),
	)
	s.Store = memory.New(opts...)

	log.Info().
		Str("path", path).
		Int("accounts", len(snap.Accounts)).
		Int("entries", len(snap.Entries)).
		Msg("JSON store opened")

	return s, nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "jsonfile" }

func (s *Store) persist(st memory.State) error {
	if err := SaveSnapshot(s.path, fromState(st)); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("failed to write snapshot")
		return err
	}
	return nil
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Meta.Version > FormatVersion {
		return snap, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Meta.Version, FormatVersion)
	}
	return snap, nil
}

// SaveSnapshot writes snap to path atomically.
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Meta = Meta{
		Storage:   "json_snapshot",
		Version:   FormatVersion,
		Timestamp: time.Now().UTC(),
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}

func (snap Snapshot) state() memory.State {
	st := memory.State{Entries: snap.Entries}
	for _, a := range snap.Accounts {
		st.Accounts = append(st.Accounts, domain.Account{
			ID:        a.ID,
			PinHash:   a.PinHash,
			Balance:   a.Balance,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
			ClosedAt:  a.ClosedAt,
		})
	}
	return st
}

func fromState(st memory.State) Snapshot {
	snap := Snapshot{
		Accounts: make([]PersistAccount, 0, len(st.Accounts)),
		Entries:  st.Entries,
	}
	if snap.Entries == nil {
		snap.Entries = []domain.LedgerEntry{}
	}
	for _, a := range st.Accounts {
		snap.Accounts = append(snap.Accounts, PersistAccount{
			ID:        a.ID,
			PinHash:   a.PinHash,
			Balance:   a.Balance,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
			ClosedAt:  a.ClosedAt,
		})
	}
	return snap
}
