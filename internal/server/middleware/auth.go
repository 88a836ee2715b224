package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-helpers/internal/store"
	"github.com/nulzo/model-helpers/pkg/api"
)

// Auth checks for a configured Bearer token. Requests that only carry
// X-App-Name are let through anonymously. With no keys configured the
// check is disabled.
func Auth(staticKeys []string) gin.HandlerFunc {
	keys := make([]string, 0, len(staticKeys))
	for _, k := range staticKeys {
		if k != "" {
			keys = append(keys, k)
		}
	}

	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if c.GetHeader("X-App-Name") != "" {
				c.Next()
				return
			}
			abort(c, api.UnauthorizedError("Missing Authorization header or X-App-Name"))
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			abort(c, api.UnauthorizedError("Invalid Authorization header format"))
			return
		}

		if !known(keys, token) {
			abort(c, api.UnauthorizedError("Invalid API Key"))
			return
		}

		// only a hash prefix is kept for the ledger
		sum := sha256.Sum256([]byte(token))
		ctx := context.WithValue(c.Request.Context(), store.ContextKeyAPIKey, "key_"+hex.EncodeToString(sum[:])[:12])
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func known(keys []string, token string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, p *api.Problem) {
	c.AbortWithStatusJSON(p.Status, p)
}
