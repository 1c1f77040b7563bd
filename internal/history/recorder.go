package history

import (
	"context"

	"github.com/nekogravitycat/room-booking-backend/internal/booking"
)

// Recorder writes every booking event to the history log and serves it back.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) HandleBookingEvent(ctx context.Context, e booking.Event) error {
	return r.repo.Append(ctx, &Entry{
		BookingID: e.Booking.ID,
		Event:     string(e.Kind),
		Status:    string(e.Booking.Status),
		ActorID:   e.Actor.UserID,
		ActorName: e.Actor.Name,
		ActorRole: string(e.Actor.Role),
		Note:      e.Note,
		At:        e.At,
	})
}

// ListForBooking returns the entries of one booking, oldest first.
func (r *Recorder) ListForBooking(ctx context.Context, bookingID string) ([]*Entry, error) {
	return r.repo.ListByBooking(ctx, bookingID)
}
