package booking

import (
	"fmt"
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

// transitions is the booking lifecycle. Rejected and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusCancelled},
	StatusRejected:  {},
	StatusCancelled: {},
}

// IsValid returns true if the status is a recognized booking status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return st, nil
}

func verbFor(target Status) string {
	switch target {
	case StatusApproved:
		return "approve"
	case StatusRejected:
		return "reject"
	case StatusCancelled:
		return "cancel"
	case StatusPending:
		return "reopen"
	}
	return "move to " + string(target)
}

// initialize sets the creation status: elevated requesters approve their
// own booking, everyone else waits for review.
func initialize(b *Booking, requester Actor, now time.Time) {
	b.CreatedAt = now
	b.SubmittedAt = now
	b.UpdatedAt = now
	if requester.can(capSelfApprove) {
		approver := requester
		b.Status = StatusApproved
		b.ApprovedBy = &approver
		b.ApprovedAt = &now
		return
	}
	b.Status = StatusPending
}

// transition moves b into target after checking the lifecycle table and the
// actor's permissions, applying the side effects of the new status.
// The conflict check for approvals is the caller's job since it needs storage.
func transition(b *Booking, target Status, actor Actor, note string, now time.Time) error {
	if !b.Status.CanTransitionTo(target) {
		return transitionError(b.Status, verbFor(target))
	}
	if !actor.mayEnter(b, target) {
		return ErrPermissionDenied
	}

	switch target {
	case StatusApproved:
		approver := actor
		b.ApprovedBy = &approver
		b.ApprovedAt = &now
	case StatusRejected:
		approver := actor
		b.ApprovedBy = &approver
		b.ApprovedAt = &now
		b.RejectionReason = note
	case StatusCancelled:
		if note != "" {
			b.RejectionReason = note
		}
	}

	b.Status = target
	b.UpdatedAt = now
	return nil
}

// DisplayStatus is a read-time label layered over the stored status.
type DisplayStatus string

const (
	DisplayUpcoming   DisplayStatus = "upcoming"
	DisplayInProgress DisplayStatus = "in progress"
	DisplayCompleted  DisplayStatus = "completed"
)

// Derive computes the display status of b at now, interpreting its wall
// clock times in loc. Only approved bookings get time based labels; every
// other status is shown as stored. The result must never be persisted.
func Derive(b *Booking, now time.Time, loc *time.Location) DisplayStatus {
	if b.Status != StatusApproved {
		return DisplayStatus(b.Status)
	}
	r, err := timerange.ParseRange(b.StartTime, b.EndTime)
	if err != nil {
		return DisplayStatus(b.Status)
	}
	start, err := timerange.At(b.Date, r.Start, loc)
	if err != nil {
		return DisplayStatus(b.Status)
	}
	end, _ := timerange.At(b.Date, r.End, loc)

	switch {
	case now.Before(start):
		return DisplayUpcoming
	case now.Before(end):
		return DisplayInProgress
	default:
		return DisplayCompleted
	}
}
