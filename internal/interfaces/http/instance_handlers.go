package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/editorial-workflow/internal/application/service"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// CreateInstanceRequest starts a workflow for a content item
type CreateInstanceRequest struct {
	ContentType  string `json:"content_type" binding:"required"`
	DefinitionID string `json:"definition_id" binding:"required"`
}

// TransitionRequest names either a rule or a target state
type TransitionRequest struct {
	TransitionRuleID string `json:"transition_rule_id"`
	TargetStateID    string `json:"target_state_id"`
	Comment          string `json:"comment"`
}

// LifecycleRequest carries the note recorded with cancel, hold and resume
type LifecycleRequest struct {
	Comment string `json:"comment"`
}

// CreateInstance handles POST /api/content/:contentId/workflow
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "content_type and definition_id are required")
		return
	}

	inst, err := h.instances.CreateInstance(c.Request.Context(), c.Param("contentId"), req.ContentType, req.DefinitionID, actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// GetWorkflowInstance handles GET /api/content/:contentId/workflow
func (h *Handlers) GetWorkflowInstance(c *gin.Context) {
	inst, err := h.instances.GetWorkflowInstance(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// GetInstance handles GET /api/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	inst, err := h.instances.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// GetAvailableTransitions handles GET /api/content/:contentId/workflow/transitions.
// The rules are filtered by the caller's roles.
func (h *Handlers) GetAvailableTransitions(c *gin.Context) {
	rules, err := h.instances.GetAvailableTransitions(c.Request.Context(), c.Param("contentId"), actorFrom(c).Roles)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rules})
}

// PerformTransition handles POST /api/content/:contentId/workflow/transitions
func (h *Handlers) PerformTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid transition request: "+err.Error())
		return
	}
	if req.TransitionRuleID == "" && req.TargetStateID == "" {
		h.badRequest(c, "transition_rule_id or target_state_id is required")
		return
	}

	inst, err := h.instances.PerformTransition(c.Request.Context(), service.TransitionCommand{
		ContentID:        c.Param("contentId"),
		TransitionRuleID: req.TransitionRuleID,
		TargetStateID:    req.TargetStateID,
		Actor:            actorFrom(c),
		Comment:          req.Comment,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// CancelInstance handles POST /api/content/:contentId/workflow/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	h.lifecycle(c, h.instances.CancelInstance)
}

// HoldInstance handles POST /api/content/:contentId/workflow/hold
func (h *Handlers) HoldInstance(c *gin.Context) {
	h.lifecycle(c, h.instances.HoldInstance)
}

// ResumeInstance handles POST /api/content/:contentId/workflow/resume
func (h *Handlers) ResumeInstance(c *gin.Context) {
	h.lifecycle(c, h.instances.ResumeInstance)
}

type lifecycleFunc func(ctx context.Context, contentID string, actor entity.Actor, comment string) (*entity.WorkflowInstance, error)

func (h *Handlers) lifecycle(c *gin.Context, change lifecycleFunc) {
	var req LifecycleRequest
	// The body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid lifecycle request: "+err.Error())
			return
		}
	}

	inst, err := change(c.Request.Context(), c.Param("contentId"), actorFrom(c), req.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}
