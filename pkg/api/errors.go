package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vexa-ai/vexa/pkg/lifecycle"
	"github.com/vexa-ai/vexa/pkg/registry"
)

// writeServiceError maps a component-layer error to an HTTP response, the
// gin analog of the teacher's mapServiceError. Nothing downstream of this
// function should inspect an error string.
func writeServiceError(c *gin.Context, err error) {
	var validErr *registry.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validErr.Error()})
		return
	}
	if errors.Is(err, registry.ErrNotFound) || errors.Is(err, lifecycle.ErrMeetingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	if errors.Is(err, registry.ErrConcurrencyLimit) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "concurrency limit reached"})
		return
	}
	if errors.Is(err, registry.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "active meeting already exists"})
		return
	}
	if errors.Is(err, lifecycle.ErrPreconditionFailed) {
		c.JSON(http.StatusConflict, gin.H{"error": "meeting is not in a state that accepts this action"})
		return
	}

	slog.Error("unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
