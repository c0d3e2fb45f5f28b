package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the header the request ID is read from and echoed to.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches an identifier to every request so log lines from one
// request can be correlated. An incoming X-Request-ID is honored, otherwise a
// fresh UUID is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

const requestIDKey = "request_id"

// GetRequestID returns the identifier attached by RequestID, or "" when the
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
