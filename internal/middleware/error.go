package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/esante/rdv-service/pkg/errors"
)

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler converts errors attached by handlers into JSON
// responses. Application errors carry their own status code and
// machine-readable code; anything else is a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)

		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("trace_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("request error")
		}

		lastErr := c.Errors.Last().Err
		status := http.StatusInternalServerError
		code := string(apperrors.CodeInternal)
		message := "internal server error"

		if appErr, ok := lastErr.(*apperrors.AppError); ok {
			status = appErr.StatusCode()
			code = string(appErr.Code)
			message = appErr.Message
		}

		c.JSON(status, ErrorResponse{
			Code:    code,
			Message: message,
			TraceID: traceID,
		})
	}
}
