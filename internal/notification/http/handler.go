package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/notification"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/response"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

var errUnauthenticated = apperror.New(http.StatusUnauthorized, apperror.KindUnauthorized, "unauthorized")

// List returns the caller's own feed, newest first.
func (h *Handler) List(c *gin.Context) {
	var req ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	userID := auth.GetUserID(c)
	if userID == "" {
		response.Error(c, errUnauthenticated)
		return
	}

	list, total, err := h.service.List(c.Request.Context(), notification.Filter{
		UserID:     userID,
		UnreadOnly: req.Unread,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]NotificationResponse, len(list))
	for i, n := range list {
		items[i] = NewResponse(n)
	}
	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID := auth.GetUserID(c)
	if userID == "" {
		response.Error(c, errUnauthenticated)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{Unread: count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	userID := auth.GetUserID(c)
	if userID == "" {
		response.Error(c, errUnauthenticated)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), uri.ID, userID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID := auth.GetUserID(c)
	if userID == "" {
		response.Error(c, errUnauthenticated)
		return
	}

	updated, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, MarkAllReadResponse{Updated: updated})
}
