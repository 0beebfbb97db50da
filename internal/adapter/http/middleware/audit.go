package middleware

import (
	"encoding/json"
	"net/http"

	"pin-ledger/internal/core/domain"
	"pin-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditedRoutes maps "METHOD route" to the action it records.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/auth/register":        {domain.AuditActionRegister, "account"},
	"POST /api/v1/auth/login":           {domain.AuditActionLogin, "session"},
	"POST /api/v1/auth/logout":          {domain.AuditActionLogout, "session"},
	"POST /api/v1/accounts/me/deposit":  {domain.AuditActionDeposit, "account"},
	"POST /api/v1/accounts/me/withdraw": {domain.AuditActionWithdraw, "account"},
	"POST /api/v1/accounts/me/transfer": {domain.AuditActionTransfer, "account"},
	"DELETE /api/v1/accounts/me":        {domain.AuditActionDelete, "account"},
	"GET /api/v1/accounts/me/export":    {domain.AuditActionExport, "ledger"},
}

// AuditLog creates an audit middleware that records successful sensitive
// operations after the handler has run.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		// A replayed response was audited when it first ran.
		if c.Writer.Header().Get(HeaderIdempotentReplay) != "" {
			return
		}

		route, ok := auditedRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		accountID, _ := AccountID(c)
		resourceID := c.GetString(CtxAuditResource)
		if resourceID == "" {
			resourceID = accountID
		}

		details, _ := json.Marshal(map[string]any{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			AccountID:    accountID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}
