package service

import (
	"context"
	"math"
	"testing"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededReporting(t *testing.T) *ReportingServiceImpl {
	t.Helper()
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, svc, "alice", "bob")

	_, err := svc.Deposit(ctx, "alice", 1000)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, "bob", 300)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, "alice", 100, "1234")
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, "alice", "bob", 250, "1234")
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, "bob", "alice", 50, "1234")
	require.NoError(t, err)

	return NewReportingService(svc)
}

func TestReportingService_Summary(t *testing.T) {
	svc := seededReporting(t)

	sum, err := svc.Summary(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &domain.EntrySummary{
		AccountID:      "alice",
		Entries:        4,
		TotalDeposited: 1000,
		TotalWithdrawn: 100,
		TotalSent:      250,
		TotalReceived:  50,
	}, sum)

	_, err = svc.Summary(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportingService_ListEntries(t *testing.T) {
	svc := seededReporting(t)
	ctx := context.Background()

	t.Run("oldest first by default", func(t *testing.T) {
		entries, total, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, entries, 4)
		assert.Equal(t, domain.EntryDeposit, entries[0].Kind)
		assert.Equal(t, domain.EntryTransferIn, entries[3].Kind)
	})

	t.Run("newest first", func(t *testing.T) {
		entries, _, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Newest: true})
		require.NoError(t, err)
		assert.Equal(t, domain.EntryTransferIn, entries[0].Kind)
	})

	t.Run("filter by kind", func(t *testing.T) {
		kind := domain.EntryTransferOut
		entries, total, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Kind: &kind})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, entries, 1)
		assert.Equal(t, "bob", entries[0].Counterparty)
	})

	t.Run("pagination", func(t *testing.T) {
		entries, total, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Page: 2, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.EntryTransferIn, entries[0].Kind)

		entries, _, err = svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Page: 9, PageSize: 3})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("page far past the end", func(t *testing.T) {
		entries, total, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Page: 1 << 62, PageSize: 100})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Empty(t, entries)

		entries, _, err = svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Page: math.MaxInt, PageSize: math.MaxInt})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("invalid kind", func(t *testing.T) {
		kind := domain.EntryKind("refund")
		_, _, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "alice", Kind: &kind})
		assert.Error(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, _, err := svc.ListEntries(ctx, ports.EntryListParams{AccountID: "ghost"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestEntryListParams_Normalize(t *testing.T) {
	tests := []struct {
		name         string
		in           ports.EntryListParams
		wantPage     int
		wantPageSize int
	}{
		{"defaults", ports.EntryListParams{}, 1, ports.DefaultPageSize},
		{"negative", ports.EntryListParams{Page: -3, PageSize: -1}, 1, ports.DefaultPageSize},
		{"capped", ports.EntryListParams{Page: 2, PageSize: 500}, 2, ports.MaxPageSize},
		{"kept", ports.EntryListParams{Page: 3, PageSize: 50}, 3, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPageSize, got.PageSize)
		})
	}
}
