package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// PageRequest represents paging query parameters
type PageRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// AuditHistory handles GET /api/content/:contentId/audit
func (h *Handlers) AuditHistory(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}

	records, err := h.audit.History(c.Request.Context(), c.Param("contentId"), req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []*entity.StateChangeRecord{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// AuditSummary handles GET /api/content/:contentId/audit/summary
func (h *Handlers) AuditSummary(c *gin.Context) {
	summary, err := h.audit.Summary(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	items, err := h.notifications.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []*entity.StateChangedNotification{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// ContentNotifications handles GET /api/content/:contentId/notifications
func (h *Handlers) ContentNotifications(c *gin.Context) {
	items, err := h.notifications.ListByContent(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if items == nil {
		items = []*entity.StateChangedNotification{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// TransitionFrequency handles GET /api/reports/transition-frequency
func (h *Handlers) TransitionFrequency(c *gin.Context) {
	freq, err := h.notifications.TransitionFrequency(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if freq == nil {
		freq = []entity.TransitionFrequency{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: freq})
}
