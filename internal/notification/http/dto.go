package http

import (
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/notification"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/request"
)

type ListNotificationsRequest struct {
	request.ListParams
	Unread bool `form:"unread"`
}

type NotificationResponse struct {
	ID        string     `json:"id"`
	BookingID string     `json:"booking_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewResponse(n *notification.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		BookingID: n.BookingID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.IsRead(),
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}
