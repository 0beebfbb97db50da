package handler

import (
	"net/http"

	"pin-ledger/internal/adapter/http/dto"
	"pin-ledger/internal/adapter/http/middleware"
	"pin-ledger/internal/core/ports"
	"pin-ledger/pkg/apperror"
	"pin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles balance and money movement endpoints of the
// authenticated account.
type AccountHandler struct {
	ledger ports.LedgerService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger ports.LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// Get handles GET /api/v1/accounts/me.
func (h *AccountHandler) Get(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	acc, err := h.ledger.Balance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAccountResponse(acc))
}

// Deposit handles POST /api/v1/accounts/me/deposit.
func (h *AccountHandler) Deposit(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindError(err))
		return
	}

	acc, err := h.ledger.Deposit(c.Request.Context(), id, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAccountResponse(acc))
}

// Withdraw handles POST /api/v1/accounts/me/withdraw.
func (h *AccountHandler) Withdraw(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindError(err))
		return
	}

	acc, err := h.ledger.Withdraw(c.Request.Context(), id, req.Amount, req.Pin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAccountResponse(acc))
}

// Transfer handles POST /api/v1/accounts/me/transfer. It responds with the
// sender's new state.
func (h *AccountHandler) Transfer(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindError(err))
		return
	}

	acc, err := h.ledger.Transfer(c.Request.Context(), id, req.To, req.Amount, req.Pin)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResource, req.To)
	response.OK(c, dto.NewAccountResponse(acc))
}

// Delete handles DELETE /api/v1/accounts/me.
func (h *AccountHandler) Delete(c *gin.Context) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindError(err))
		return
	}

	if err := h.ledger.DeleteAccount(c.Request.Context(), id, req.Pin); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
