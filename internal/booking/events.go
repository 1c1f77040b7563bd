package booking

import (
	"context"
	"log/slog"
	"time"
)

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventApproved  EventKind = "approved"
	EventRejected  EventKind = "rejected"
	EventCancelled EventKind = "cancelled"
	EventUpdated   EventKind = "updated"
)

// Event is the fact emitted after a booking write commits.
type Event struct {
	Kind    EventKind
	Booking Booking
	Actor   Actor
	Note    string
	At      time.Time
}

// Subscriber consumes booking events (history log, notifications, ...).
type Subscriber interface {
	HandleBookingEvent(ctx context.Context, e Event) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, e Event) error

func (f SubscriberFunc) HandleBookingEvent(ctx context.Context, e Event) error {
	return f(ctx, e)
}

func eventForStatus(s Status) EventKind {
	switch s {
	case StatusApproved:
		return EventApproved
	case StatusRejected:
		return EventRejected
	case StatusCancelled:
		return EventCancelled
	}
	return EventUpdated
}

// dispatcher delivers events to every subscriber. Subscriber failures are
// logged and swallowed: the booking write has already committed.
type dispatcher struct {
	subscribers []Subscriber
	logger      *slog.Logger
}

func (d *dispatcher) publish(ctx context.Context, e Event) {
	for _, sub := range d.subscribers {
		d.deliver(ctx, sub, e)
	}
}

func (d *dispatcher) deliver(ctx context.Context, sub Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "booking event subscriber panicked",
				"event", e.Kind, "booking_id", e.Booking.ID, "panic", r)
		}
	}()
	if err := sub.HandleBookingEvent(ctx, e); err != nil {
		d.logger.WarnContext(ctx, "booking event subscriber failed",
			"event", e.Kind, "booking_id", e.Booking.ID, "error", err)
	}
}
