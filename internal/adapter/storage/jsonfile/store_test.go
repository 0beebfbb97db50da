package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.json")
	ctx := context.Background()

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Create(ctx, "alice", "hash-a")
	require.NoError(t, err)
	_, err = s.Create(ctx, "bob", "hash-b")
	require.NoError(t, err)

	at := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.UTC)
	out, in := domain.TransferPair("alice", "bob", 2500, at)
	err = s.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		if _, err := tx.Update(ctx, "bob", func(a *domain.Account) error { a.Balance = 2500; return nil }); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, out); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, in)
	})
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "alice"))
	require.NoError(t, s.Close())

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	bob, err := reopened.Get(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2500, bob.Balance)
	assert.Equal(t, "hash-b", bob.PinHash)

	_, err = reopened.Get(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = reopened.Create(ctx, "alice", "again")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	var got []domain.LedgerEntry
	for e, err := range reopened.EntriesFor(ctx, "bob") {
		require.NoError(t, err)
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, in.ID, got[0].ID)
	assert.True(t, at.Equal(got[0].Timestamp))
	assert.Equal(t, "alice", got[0].Counterparty)
}

func TestStore_WriteFailureRollsBack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	path := filepath.Join(dir, "ledger.json")
	ctx := context.Background()

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", "h")
	require.NoError(t, err)

	// Replace the directory with a plain file so the next write fails.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	_, err = s.Update(ctx, "alice", func(a *domain.Account) error { a.Balance = 100; return nil })
	assert.ErrorIs(t, err, domain.ErrStorageFailure)

	acc, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, acc.Balance, "in-memory state must match the last good file")
}

func TestStore_OpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "none.json"), zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "jsonfile", s.Name())
}

func TestStore_OpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path, zerolog.Nop())
	assert.Error(t, err)
}

func TestSnapshot_RejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"_meta":{"version":99},"accounts":[],"entries":[]}`), 0o644))

	_, err := LoadSnapshot(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestSaveSnapshot_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	require.NoError(t, SaveSnapshot(path, Snapshot{}))
	require.NoError(t, SaveSnapshot(path, Snapshot{}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ledger.json", files[0].Name())

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "json_snapshot", snap.Meta.Storage)
	assert.Equal(t, FormatVersion, snap.Meta.Version)
}
