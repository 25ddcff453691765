package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cropwatch/auth"
	"cropwatch/internal/db"
)

const UserIDKey = "user_id"

// token reads the bearer token from the Authorization header, or from the
// access_token query parameter for websocket clients that cannot set headers.
func token(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return h
	}
	return c.Query("access_token")
}

func (m *MiddlewareManager) authenticate(c *gin.Context) (auth.Identity, error) {
	id, err := m.auth.ValidateTokenJWT(c.Request.Context(), token(c))
	if err != nil {
		return id, err
	}
	c.Set(UserIDKey, id.UserID)
	c.Request = c.Request.WithContext(db.WithClaims(c.Request.Context(), id.Claims, id.UserID))
	return id, nil
}

// RequireAuth rejects requests without a valid token. Store queries made
// with the request context then run as the caller.
func (m *MiddlewareManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := m.authenticate(c); err != nil {
			m.logger.Debug("authentication failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid token is present. Other
// requests continue as the anon database role, never as the service.
func (m *MiddlewareManager) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token(c) != "" {
			_, err := m.authenticate(c)
			if err == nil {
				c.Next()
				return
			}
			m.logger.Debug("ignoring invalid token", zap.Error(err))
		}
		c.Request = c.Request.WithContext(db.WithAnonymous(c.Request.Context()))
		c.Next()
	}
}

// IsLoggedIn reports whether the auth middleware accepted a token.
func IsLoggedIn(c *gin.Context) bool {
	return c.GetString(UserIDKey) != ""
}
