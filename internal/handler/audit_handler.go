package handler

import (
	"net/http"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/middleware"
	"dealdesk/internal/repository"
	"dealdesk/internal/service"
	"dealdesk/pkg/pagination"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	group := router.Group("/api/audit-logs")
	group.Use(auth.RequireAuth(lifecycle.RoleAdmin, lifecycle.RoleAccounting))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns audit rows newest first with the acting user attached
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Param        action     query     string  false  "Filter by action, e.g. DEAL_TRANSITION"
// @Param        entity_id  query     string  false  "Filter by entity ID"
// @Success      200        {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, logs, p.Page, p.Limit, total))
}
