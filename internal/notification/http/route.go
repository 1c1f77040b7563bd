package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/notifications")

	// === Authenticated Routes (own feed only) ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.GET("/unread-count", h.UnreadCount)
		group.PUT("/read-all", h.MarkAllRead)
		group.PUT("/:id/read", h.MarkRead)
	}
}
