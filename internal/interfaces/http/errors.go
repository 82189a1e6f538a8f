package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"

	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
)

// statusFor maps an error classification to the HTTP status returned to the caller
func statusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindPermissionDenied:
		return http.StatusForbidden
	case workflow.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case workflow.KindConcurrentModification:
		return http.StatusConflict
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an application/problem+json body
func (h *Handlers) respondError(c *gin.Context, err error) {
	kind := workflow.KindOf(err)
	status := statusFor(kind)

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(string(kind))
	if status == http.StatusInternalServerError && kind == workflow.KindInternal {
		// Internal details stay in the log
		problem = problem.WithDetail("internal error")
	} else {
		problem = problem.WithDetail(err.Error())
	}

	h.logger.Error("Request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"kind", string(kind),
		"error", err)

	c.Header("Content-Type", problems.ProblemMediaType)
	c.AbortWithStatusJSON(status, problem)
}

// badRequest reports a malformed request body or query
func (h *Handlers) badRequest(c *gin.Context, detail string) {
	problem := problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(c.Request.URL.Path).
		WithType(string(workflow.KindValidation)).
		WithDetail(detail)

	c.Header("Content-Type", problems.ProblemMediaType)
	c.AbortWithStatusJSON(http.StatusBadRequest, problem)
}

// definitionError reports a definition addressed by the URL as missing rather than invalid
func definitionError(err error) error {
	if errors.Is(err, workflow.ErrUnknownDefinition) {
		return fmt.Errorf("%w: %v", workflow.ErrNotFound, err)
	}
	return err
}
