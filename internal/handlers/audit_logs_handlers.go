package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"medkit/internal/models"
	"medkit/internal/services"
)

// AuditLogsHandlers exposes the lifecycle audit trail.
type AuditLogsHandlers struct {
	auditLogsService services.AuditLogsService
}

func NewAuditLogsHandlers(auditLogsService services.AuditLogsService) *AuditLogsHandlers {
	return &AuditLogsHandlers{auditLogsService: auditLogsService}
}

// ListAuditLogs retrieves audit logs with filtering and pagination
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	filters := &models.AuditLogFilters{}
	if v := c.QueryParam("entity_type"); v != "" {
		et := models.EntityType(v)
		filters.EntityType = &et
	}
	if v := c.QueryParam("entity_id"); v != "" {
		filters.EntityID = &v
	}
	if v := c.QueryParam("action"); v != "" {
		filters.Action = &v
	}
	if v := c.QueryParam("changed_by"); v != "" {
		filters.ChangedBy = &v
	}

	var err error
	if filters.StartDate, err = queryTime(c, "start_date"); err != nil {
		return respondError(c, err)
	}
	if filters.EndDate, err = queryTime(c, "end_date"); err != nil {
		return respondError(c, err)
	}
	if filters.Limit, err = queryInt(c, "limit", 0); err != nil {
		return respondError(c, err)
	}
	if filters.Offset, err = queryInt(c, "offset", 0); err != nil {
		return respondError(c, err)
	}

	logs, err := h.auditLogsService.ListAuditLogs(c.Request().Context(), filters)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"audit_logs": logs,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}
