package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qgenie/ai-server/internal/shared/id"
)

// HeaderRequestID is the request ID header, honored when the client sets
// it and generated otherwise.
const HeaderRequestID = "X-Request-ID"

// ContextRequestID is the gin context key carrying the request ID.
const ContextRequestID = "request_id"

// RequestID attaches a ULID request ID to every request and echoes it in
// the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = id.NewRequestID().String()
		}
		c.Set(ContextRequestID, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}
