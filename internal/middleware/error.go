package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/rxguard/audit-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)

		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		lastErr := c.Errors.Last().Err
		c.JSON(statusFor(lastErr), ErrorResponse{
			Code:    statusFor(lastErr),
			Message: lastErr.Error(),
			TraceID: requestID,
		})
	}
}

// statusFor maps application error codes to HTTP statuses. Unknown errors
// stay 500 so internals never leak a misleading status.
func statusFor(err error) int {
	switch {
	case apperrors.IsCode(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.IsCode(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest
	case apperrors.IsCode(err, apperrors.ErrConflict):
		return http.StatusConflict
	case apperrors.IsCode(err, apperrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
