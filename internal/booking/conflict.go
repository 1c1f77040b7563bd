package booking

import (
	"context"
	"sort"

	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

// ConflictChecker finds active bookings that overlap a candidate slot.
type ConflictChecker struct {
	repo Repository
}

func NewConflictChecker(repo Repository) *ConflictChecker {
	return &ConflictChecker{repo: repo}
}

// FindConflict returns the earliest starting active booking for room and
// date whose [start, end) overlaps the candidate, ignoring excludeID.
// It returns nil when the slot is free. It never writes.
func (c *ConflictChecker) FindConflict(ctx context.Context, room, date, start, end, excludeID string) (*Booking, error) {
	want, err := parseSlot(start, end)
	if err != nil {
		return nil, err
	}

	candidates, err := c.repo.FindByRoomAndDate(ctx, room, date, ActiveStatuses)
	if err != nil {
		return nil, err
	}

	type parsed struct {
		b *Booking
		r timerange.Range
	}
	existing := make([]parsed, 0, len(candidates))
	for _, b := range candidates {
		if b.ID == excludeID || !b.Status.IsActive() {
			continue
		}
		r, err := timerange.ParseRange(b.StartTime, b.EndTime)
		if err != nil {
			// A stored row we cannot read still occupies the room as far as we know.
			return b, nil
		}
		existing = append(existing, parsed{b: b, r: r})
	}

	sort.SliceStable(existing, func(i, j int) bool {
		if existing[i].r.Start != existing[j].r.Start {
			return existing[i].r.Start < existing[j].r.Start
		}
		return existing[i].b.ID < existing[j].b.ID
	})

	for _, e := range existing {
		if want.Overlaps(e.r) {
			return e.b, nil
		}
	}
	return nil, nil
}

// parseSlot validates a wall-clock slot: both ends well formed, start before end.
func parseSlot(start, end string) (timerange.Range, error) {
	s, err := timerange.ToMinutes(start)
	if err != nil {
		return timerange.Range{}, validationError("start_time", "start time must be in HH:MM format")
	}
	e, err := timerange.ToMinutes(end)
	if err != nil {
		return timerange.Range{}, validationError("end_time", "end time must be in HH:MM format")
	}
	if s >= e {
		return timerange.Range{}, validationError("end_time", "end time must be after start time")
	}
	return timerange.Range{Start: s, End: e}, nil
}
