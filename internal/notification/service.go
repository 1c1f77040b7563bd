package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/booking"
)

type Service interface {
	List(ctx context.Context, filter Filter) ([]*Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	// HandleBookingEvent turns booking events into feed entries.
	HandleBookingEvent(ctx context.Context, e booking.Event) error
}

type service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:   repo,
		logger: logger.With("service", "notification"),
		now:    time.Now,
	}
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Notification, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkRead(ctx, id, userID, s.now().UTC())
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now().UTC())
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *service) HandleBookingEvent(ctx context.Context, e booking.Event) error {
	n := route(e)
	if n == nil {
		return nil
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "notification created",
		"user_id", n.UserID, "booking_id", n.BookingID, "kind", n.Kind)
	return nil
}

// route picks the recipient of a booking event. Nobody is notified about
// their own actions.
func route(e booking.Event) *Notification {
	b := e.Booking
	requester := b.BookedBy.UserID
	slot := describeSlot(&b)

	var recipient, title, message string
	switch e.Kind {
	case booking.EventCreated:
		if b.Status != booking.StatusPending || b.AssignedManager == nil {
			return nil
		}
		recipient = b.AssignedManager.UserID
		title = "Booking awaiting approval"
		message = fmt.Sprintf("%s requested %s for %q.", b.BookedBy.Name, slot, b.Purpose)
	case booking.EventApproved:
		recipient = requester
		title = "Booking approved"
		message = fmt.Sprintf("Your booking of %s was approved by %s.", slot, e.Actor.Name)
	case booking.EventRejected:
		recipient = requester
		title = "Booking rejected"
		message = fmt.Sprintf("Your booking of %s was rejected by %s.", slot, e.Actor.Name)
		if b.RejectionReason != "" {
			message += " Reason: " + b.RejectionReason
		}
	case booking.EventCancelled:
		recipient = requester
		title = "Booking cancelled"
		message = fmt.Sprintf("Your booking of %s was cancelled by %s.", slot, e.Actor.Name)
		if e.Note != "" {
			message += " Reason: " + e.Note
		}
	case booking.EventUpdated:
		recipient = requester
		title = "Booking updated"
		message = fmt.Sprintf("Your booking is now %s after changes by %s.", slot, e.Actor.Name)
	default:
		return nil
	}

	if recipient == "" || recipient == e.Actor.UserID {
		return nil
	}
	return &Notification{
		UserID:    recipient,
		BookingID: b.ID,
		Kind:      string(e.Kind),
		Title:     title,
		Message:   message,
	}
}

func describeSlot(b *booking.Booking) string {
	return fmt.Sprintf("%s on %s from %s to %s", b.RoomName, b.Date, b.StartTime, b.EndTime)
}
