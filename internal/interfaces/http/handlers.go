package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/editorial-workflow/internal/application/service"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	definitions   *service.DefinitionService
	instances     *service.InstanceService
	audit         *service.AuditService
	notifications *service.NotificationService
	workers       WorkerStatus
	ping          func(ctx context.Context) error
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		definitions:   deps.Definitions,
		instances:     deps.Instances,
		audit:         deps.Audit,
		notifications: deps.Notifications,
		workers:       deps.Workers,
		ping:          deps.Ping,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Database  string   `json:"database"`
	Workers   string   `json:"workers"`
	Names     []string `json:"worker_names,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Database:  "ok",
		Workers:   "stopped",
	}
	status := http.StatusOK

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.Error("Database ping failed", "error", err)
			response.Database = "unreachable"
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	if h.workers != nil {
		response.Names = h.workers.WorkerNames()
		if h.workers.IsRunning() {
			response.Workers = "running"
		} else if len(response.Names) > 0 {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListDefinitions handles GET /api/definitions.
// With ?name= it returns the latest version of that definition only.
func (h *Handlers) ListDefinitions(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		def, err := h.definitions.GetByName(c.Request.Context(), name)
		if err != nil {
			h.respondError(c, definitionError(err))
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: []*entity.WorkflowDefinition{def}})
		return
	}

	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	defs, err := h.definitions.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	if defs == nil {
		defs = []*entity.WorkflowDefinition{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// CreateDefinition handles POST /api/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		h.badRequest(c, "invalid workflow definition body: "+err.Error())
		return
	}

	created, err := h.definitions.Create(c.Request.Context(), &def)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}

	h.logger.Info("Workflow definition created", "definition_id", created.ID, "name", created.Name, "user_id", actorFrom(c).UserID)
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// GetDefinition handles GET /api/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	def, err := h.definitions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// UpdateDefinition handles PUT /api/definitions/:id.
// A definition already used by instances comes back as a new version with a new id.
func (h *Handlers) UpdateDefinition(c *gin.Context) {
	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		h.badRequest(c, "invalid workflow definition body: "+err.Error())
		return
	}
	def.ID = c.Param("id")

	updated, err := h.definitions.Update(c.Request.Context(), &def)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// DeleteDefinition handles DELETE /api/definitions/:id
func (h *Handlers) DeleteDefinition(c *gin.Context) {
	if err := h.definitions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// AddState handles POST /api/definitions/:id/states
func (h *Handlers) AddState(c *gin.Context) {
	var state entity.WorkflowState
	if err := c.ShouldBindJSON(&state); err != nil {
		h.badRequest(c, "invalid state body: "+err.Error())
		return
	}

	def, err := h.definitions.AddState(c.Request.Context(), c.Param("id"), state)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

// UpdateState handles PUT /api/definitions/:id/states/:stateId
func (h *Handlers) UpdateState(c *gin.Context) {
	var state entity.WorkflowState
	if err := c.ShouldBindJSON(&state); err != nil {
		h.badRequest(c, "invalid state body: "+err.Error())
		return
	}
	state.ID = c.Param("stateId")

	def, err := h.definitions.UpdateState(c.Request.Context(), c.Param("id"), state)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// RemoveState handles DELETE /api/definitions/:id/states/:stateId
func (h *Handlers) RemoveState(c *gin.Context) {
	def, err := h.definitions.RemoveState(c.Request.Context(), c.Param("id"), c.Param("stateId"))
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// AddTransition handles POST /api/definitions/:id/transitions
func (h *Handlers) AddTransition(c *gin.Context) {
	var rule entity.TransitionRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		h.badRequest(c, "invalid transition body: "+err.Error())
		return
	}

	def, err := h.definitions.AddTransition(c.Request.Context(), c.Param("id"), rule)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

// UpdateTransition handles PUT /api/definitions/:id/transitions/:ruleId
func (h *Handlers) UpdateTransition(c *gin.Context) {
	var rule entity.TransitionRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		h.badRequest(c, "invalid transition body: "+err.Error())
		return
	}
	rule.ID = c.Param("ruleId")

	def, err := h.definitions.UpdateTransition(c.Request.Context(), c.Param("id"), rule)
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// RemoveTransition handles DELETE /api/definitions/:id/transitions/:ruleId
func (h *Handlers) RemoveTransition(c *gin.Context) {
	def, err := h.definitions.RemoveTransition(c.Request.Context(), c.Param("id"), c.Param("ruleId"))
	if err != nil {
		h.respondError(c, definitionError(err))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}
