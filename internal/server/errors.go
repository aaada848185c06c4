package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
)

type errorPayload struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Hints   []string       `json:"hints,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrMissingOrg      = ierr.Sentinel("invalid_org_header", ierr.ErrValidation)
	ErrInvalidID       = ierr.Sentinel("invalid_id", ierr.ErrValidation)
	ErrSchedulerAbsent = ierr.Sentinel("scheduler_unavailable", ierr.ErrInvariantViolation)
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	status := ierr.HTTPStatus(err)
	if err == nil || status == http.StatusInternalServerError {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
	return status, errorPayload{
		Type:    ierr.Category(err),
		Message: err.Error(),
		Hints:   ierr.Hints(err),
		Details: ierr.ReportableDetails(err),
	}
}

func classifyErrorForLog(err error) string {
	return ierr.Category(err)
}
