package handler

import (
	"strconv"

	"pin-ledger/internal/adapter/http/dto"
	"pin-ledger/internal/adapter/http/middleware"
	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"
	"pin-ledger/internal/export"
	"pin-ledger/pkg/apperror"
	"pin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HistoryHandler handles ledger history endpoints.
type HistoryHandler struct {
	ledger       ports.LedgerService
	reportingSvc ports.ReportingService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(ledger ports.LedgerService, reportingSvc ports.ReportingService) *HistoryHandler {
	return &HistoryHandler{ledger: ledger, reportingSvc: reportingSvc}
}

// Transactions handles GET /api/v1/accounts/me/transactions.
// Query: order=asc|desc (default asc), type, page, page_size.
func (h *HistoryHandler) Transactions(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params := ports.EntryListParams{AccountID: id}

	switch c.DefaultQuery("order", "asc") {
	case "asc":
	case "desc":
		params.Newest = true
	default:
		response.Error(c, apperror.Validation("order must be asc or desc"))
		return
	}

	if t := c.Query("type"); t != "" {
		kind := domain.EntryKind(t)
		params.Kind = &kind
	}
	var err error
	if params.Page, err = strconv.Atoi(c.DefaultQuery("page", "1")); err != nil {
		response.Error(c, apperror.Validation("page must be an integer"))
		return
	}
	if params.PageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(ports.DefaultPageSize))); err != nil {
		response.Error(c, apperror.Validation("page_size must be an integer"))
		return
	}
	params = params.Normalize()

	entries, total, err := h.reportingSvc.ListEntries(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.NewEntryResponse(e))
	}

	response.OK(c, dto.EntryListResponse{
		Entries:  items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// Export handles GET /api/v1/accounts/me/export?format=json|csv.
func (h *HistoryHandler) Export(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, apperror.Validation("format must be json or csv"))
		return
	}

	data, err := h.ledger.ExportHistory(c.Request.Context(), id, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Attachment(c, id+"-history."+string(format), format.ContentType(), data)
}

// Summary handles GET /api/v1/accounts/me/summary.
func (h *HistoryHandler) Summary(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	sum, err := h.reportingSvc.Summary(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.SummaryResponse{
		Entries:        sum.Entries,
		TotalDeposited: sum.TotalDeposited,
		TotalWithdrawn: sum.TotalWithdrawn,
		TotalSent:      sum.TotalSent,
		TotalReceived:  sum.TotalReceived,
	})
}
