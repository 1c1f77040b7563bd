package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/bookings")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("", h.Create)
		group.PATCH("/:id", h.Update)
		group.GET("/:id/history", h.History)

		// State changes
		group.PUT("/:id/approve", h.Approve)
		group.PUT("/:id/reject", h.Reject)
		group.PUT("/:id/cancel", h.Cancel)
	}

	rooms := g.Group("/rooms")
	rooms.Use(authMiddleware)
	{
		rooms.GET("/:room/availability", h.Availability)
	}
}
