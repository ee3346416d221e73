package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portal-chat/internal/repositories"
)

// AuthMiddleware validates the Authorization header against the session store
// and puts the authenticated user id on the context.
func AuthMiddleware(sessions repositories.SessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		session, err := sessions.Lookup(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", session.UserID)
		c.Next()
	}
}
