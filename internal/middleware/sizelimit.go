package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/esante/rdv-service/internal/handler"
)

// Scheduling payloads are small JSON documents; the largest legitimate
// request is a bulk availability upload.
const maxBodyBytes int64 = 1 << 20

// BodyLimit rejects oversized requests up front and caps the reader so
// a lying Content-Length cannot get around the check.
func BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				handler.NewErrorResponse("request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	}
}
