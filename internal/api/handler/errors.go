package handler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/logger"
	"gorm.io/gorm"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// statusOf maps importer errors to HTTP status codes.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, importer.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrInvalidTarget),
		errors.Is(err, importer.ErrInvalidPatch),
		errors.Is(err, importer.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, importer.ErrAlreadyRunning),
		errors.Is(err, importer.ErrContextNotRunnable),
		errors.Is(err, importer.ErrCatalogConflict):
		return http.StatusConflict
	case errors.Is(err, importer.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: err.Error(),
		Hint:  errors.FlattenHints(err),
	})
}

func badRequest(c *gin.Context, msg, hint string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Hint: hint})
}
