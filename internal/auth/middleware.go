package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"kind":  "unauthorized",
	})
}

// AuthRequired validates the bearer token and stores the caller's identity
// in the gin context. Only the user ID is kept; handlers that make
// permission decisions reload the user.
func AuthRequired(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing Authorization header")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			abortUnauthorized(c, "invalid Authorization header format")
			return
		}

		claims, err := jwtManager.ParseAndValidate(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		SetIdentity(c, claims.UserID)
		c.Next()
	}
}
