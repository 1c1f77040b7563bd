package notification

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
)

var ErrNotFound = apperror.New(http.StatusNotFound, apperror.KindNotFound, "notification not found")

// Notification is one entry in a user's feed.
type Notification struct {
	ID        string
	UserID    string
	BookingID string
	Kind      string
	Title     string
	Message   string
	ReadAt    *time.Time
	CreatedAt time.Time
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Filter defines parameters for listing a user's notifications.
type Filter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
