package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoiceflow/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects request bodies larger than maxBytes with 413 REQUEST_TOO_LARGE.
// Declared lengths are checked up front; chunked bodies fail on read.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	message := fmt.Sprintf("Request body exceeds the %d byte limit", maxBytes)
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeRequestTooLarge, message, GetRequestID(c)))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
