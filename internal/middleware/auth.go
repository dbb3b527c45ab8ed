package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-hub/internal/identity"
)

// Auth validates the Authorization bearer token and stores the caller's
// identity in the gin context.
func Auth(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.FromAuthorizationHeader(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		id, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", id.UserID)
		c.Set("displayName", id.DisplayName)
		c.Next()
	}
}
