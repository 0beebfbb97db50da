package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*AccountStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := NewAccountStore(mock, nil)
	s.now = func() time.Time { return testNow }
	return s, mock
}

func accountColumnNames() []string {
	return []string{"id", "pin_hash", "balance", "created_at", "updated_at", "closed_at"}
}

func accountRow(id string, balance int64) *pgxmock.Rows {
	created := testNow.Add(-time.Hour)
	return pgxmock.NewRows(accountColumnNames()).
		AddRow(id, "hash-"+id, balance, created, created, nil)
}

func TestAccountStore_Create(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("alice", "hash", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	acc, err := s.Create(context.Background(), "alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.ID)
	assert.Zero(t, acc.Balance)
	assert.Equal(t, testNow, acc.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Create_Conflict(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO accounts .+ ON CONFLICT").
		WithArgs("alice", "hash", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.Create(context.Background(), "alice", "hash")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Get(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE id = \\$1 AND closed_at IS NULL$").
		WithArgs("alice").
		WillReturnRows(accountRow("alice", 1250))

	acc, err := s.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.ID)
	assert.EqualValues(t, 1250, acc.Balance)
	assert.Equal(t, "hash-alice", acc.PinHash)
	assert.Nil(t, acc.ClosedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Get_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("SELECT .+ FROM accounts").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("connection failure", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery("SELECT .+ FROM accounts").
			WithArgs("alice").
			WillReturnError(errors.New("conn reset"))

		_, err := s.Get(context.Background(), "alice")
		assert.ErrorIs(t, err, domain.ErrStorageFailure)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestAccountStore_Update(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM accounts WHERE id .+ FOR UPDATE").
		WithArgs("alice").
		WillReturnRows(accountRow("alice", 1000))
	mock.ExpectExec("UPDATE accounts SET pin_hash").
		WithArgs("alice", "hash-alice", int64(1500), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	acc, err := s.Update(context.Background(), "alice", func(a *domain.Account) error {
		a.Balance += 500
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1500, acc.Balance)
	assert.Equal(t, testNow, acc.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Update_MutateErrorRollsBack(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("alice").
		WillReturnRows(accountRow("alice", 100))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "alice", func(a *domain.Account) error {
		return domain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Update_CheckViolation(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("alice").
		WillReturnRows(accountRow("alice", 100))
	mock.ExpectExec("UPDATE accounts").
		WithArgs("alice", "hash-alice", int64(-1), testNow).
		WillReturnError(&pgconn.PgError{Code: pgCheckViolation})
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "alice", func(a *domain.Account) error {
		a.Balance = -1
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Remove(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("UPDATE accounts SET closed_at").
		WithArgs("alice", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE accounts SET closed_at").
		WithArgs("alice", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.Remove(context.Background(), "alice"))
	assert.ErrorIs(t, s.Remove(context.Background(), "alice"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_AppendEntry(t *testing.T) {
	s, mock := newTestStore(t)
	e := domain.NewEntry("alice", domain.EntryTransferOut, 700, "bob", testNow)

	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(e.ID, "alice", "transfer_out", int64(700), nullable("bob"), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AppendEntry(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_WithinTx_Transfer(t *testing.T) {
	s, mock := newTestStore(t)
	out, in := domain.TransferPair("alice", "bob", 300, testNow)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").WithArgs("alice").WillReturnRows(accountRow("alice", 1000))
	mock.ExpectExec("UPDATE accounts").WithArgs("alice", "hash-alice", int64(700), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").WithArgs("bob").WillReturnRows(accountRow("bob", 0))
	mock.ExpectExec("UPDATE accounts").WithArgs("bob", "hash-bob", int64(300), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(out.ID, "alice", "transfer_out", int64(300), nullable("bob"), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(in.ID, "bob", "transfer_in", int64(300), nullable("alice"), testNow).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.LedgerTx) error {
		if _, err := tx.Update(ctx, "alice", func(a *domain.Account) error { a.Balance -= 300; return nil }); err != nil {
			return err
		}
		if _, err := tx.Update(ctx, "bob", func(a *domain.Account) error { a.Balance += 300; return nil }); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, out); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, in)
	})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_WithinTx_CommitFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := s.WithinTx(context.Background(), func(context.Context, ports.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_WithinTx_BeginFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := s.WithinTx(context.Background(), func(context.Context, ports.LedgerTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.False(t, called)
}

func TestAccountStore_EntriesFor(t *testing.T) {
	s, mock := newTestStore(t)
	cols := []string{"seq", "id", "account_id", "kind", "amount", "counterparty", "created_at"}
	e1 := domain.NewEntry("alice", domain.EntryDeposit, 1000, "", testNow)
	e2 := domain.NewEntry("alice", domain.EntryTransferIn, 250, "bob", testNow.Add(time.Minute))

	mock.ExpectQuery("SELECT .+ FROM ledger_entries WHERE account_id = \\$1 AND seq > \\$2 ORDER BY seq").
		WithArgs("alice", int64(0), entriesPageSize).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), e1.ID, "alice", "deposit", int64(1000), "", e1.Timestamp).
			AddRow(int64(7), e2.ID, "alice", "transfer_in", int64(250), "bob", e2.Timestamp))

	var got []domain.LedgerEntry
	for e, err := range s.EntriesFor(context.Background(), "alice") {
		require.NoError(t, err)
		got = append(got, e)
	}

	require.Len(t, got, 2)
	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, domain.EntryDeposit, got[0].Kind)
	assert.Equal(t, domain.EntryTransferIn, got[1].Kind)
	assert.EqualValues(t, 250, got[1].Amount)
	assert.Equal(t, "bob", got[1].Counterparty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_EntriesFor_QueryError(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs("alice", int64(0), entriesPageSize).
		WillReturnError(errors.New("relation does not exist"))

	n := 0
	for _, err := range s.EntriesFor(context.Background(), "alice") {
		assert.ErrorIs(t, err, domain.ErrStorageFailure)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestAccountStore_Close(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	closed := false
	s := NewAccountStore(mock, func() { closed = true })
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
