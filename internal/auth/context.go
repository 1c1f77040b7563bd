package auth

import "github.com/gin-gonic/gin"

const ctxUserID = "userID"

// GetUserID returns the authenticated user's ID or empty string.
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// SetIdentity stores the authenticated user's ID on the Gin context.
func SetIdentity(c *gin.Context, userID string) {
	c.Set(ctxUserID, userID)
}
