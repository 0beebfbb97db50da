package service

import (
	"context"
	"slices"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/pkg/apperror"
)

// ReportingServiceImpl implements ports.ReportingService over the ledger
// history.
type ReportingServiceImpl struct {
	ledger ports.LedgerService
}

var _ ports.ReportingService = (*ReportingServiceImpl)(nil)

// NewReportingService creates a new reporting service.
func NewReportingService(ledger ports.LedgerService) *ReportingServiceImpl {
	return &ReportingServiceImpl{ledger: ledger}
}

// Summary totals the history of id per entry kind.
func (s *ReportingServiceImpl) Summary(ctx context.Context, id string) (*domain.EntrySummary, error) {
	entries, err := s.ledger.History(ctx, id)
	if err != nil {
		return nil, err
	}

	sum := &domain.EntrySummary{AccountID: id}
	for e, err := range entries {
		if err != nil {
			return nil, err
		}
		sum.Entries++
		switch e.Kind {
		case domain.EntryDeposit:
			sum.TotalDeposited += e.Amount
		case domain.EntryWithdraw:
			sum.TotalWithdrawn += e.Amount
		case domain.EntryTransferOut:
			sum.TotalSent += e.Amount
		case domain.EntryTransferIn:
			sum.TotalReceived += e.Amount
		}
	}
	return sum, nil
}

// ListEntries returns one page of the history of params.AccountID and the
// total number of matching entries.
func (s *ReportingServiceImpl) ListEntries(ctx context.Context, params ports.EntryListParams) ([]domain.LedgerEntry, int, error) {
	if params.Kind != nil && !params.Kind.Valid() {
		return nil, 0, apperror.Validation("invalid entry type")
	}
	params = params.Normalize()

	entries, err := s.ledger.History(ctx, params.AccountID)
	if err != nil {
		return nil, 0, err
	}

	matched := []domain.LedgerEntry{}
	for e, err := range entries {
		if err != nil {
			return nil, 0, err
		}
		if params.Kind != nil && e.Kind != *params.Kind {
			continue
		}
		matched = append(matched, e)
	}
	if params.Newest {
		slices.Reverse(matched)
	}

	total := len(matched)
	if params.Page-1 > total/params.PageSize {
		return []domain.LedgerEntry{}, total, nil
	}
	start := min((params.Page-1)*params.PageSize, total)
	end := min(start+params.PageSize, total)
	return matched[start:end], total, nil
}
