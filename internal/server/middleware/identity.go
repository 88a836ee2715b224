package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nulzo/model-helpers/internal/store"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAppName   = "X-App-Name"

	ContextRequestID = "request_id"
)

// Identity tags the request with an id and the calling app name, if any.
// A caller-supplied X-Request-ID is kept.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)

		if appName := c.GetHeader(HeaderAppName); appName != "" {
			ctx := context.WithValue(c.Request.Context(), store.ContextKeyAppName, appName)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
