package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	// QueryAccessToken carries the token for clients that cannot set headers (EventSource).
	QueryAccessToken = "access_token"
)

// Gin context keys set by RequireAccessToken.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
)

// RequireAccessToken verifies a dashboard access token and injects the identity into the
// request context. It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := accessToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), Identity{UserID: claims.UserID, Role: claims.Role}))
		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyRole, claims.Role)
		c.Next()
	}
}

// accessToken reads the Authorization header, falling back to the query parameter only
// when no header is sent. A non-bearer Authorization header is never accepted.
func accessToken(c *gin.Context) (string, bool) {
	if raw := strings.TrimSpace(c.GetHeader(authorizationHeader)); raw != "" {
		tok, found := strings.CutPrefix(raw, bearerPrefix)
		tok = strings.TrimSpace(tok)
		return tok, found && tok != ""
	}
	tok := strings.TrimSpace(c.Query(QueryAccessToken))
	return tok, tok != ""
}
