package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation id in and out of the service
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the Gin context key holding the correlation id
	RequestIDKey = "request_id"
)

// RequestID reuses an inbound X-Request-ID or assigns a new one, and echoes it on the response
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the correlation id for the request, or "" outside RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
