package booking

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

type memoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
}

// NewMemoryRepository returns a process local Repository. It enforces the
// same no-overlap rule and version check as the Postgres store.
func NewMemoryRepository() Repository {
	return &memoryRepository{bookings: make(map[string]*Booking)}
}

func (r *memoryRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (r *memoryRepository) FindByRoomAndDate(ctx context.Context, room, date string, statuses []Status) ([]*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Booking
	for _, b := range r.bookings {
		if b.RoomName == room && b.Date == date && slices.Contains(statuses, b.Status) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *memoryRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	r.mu.RLock()
	var matched []*Booking
	for _, b := range r.bookings {
		if matchesFilter(b, filter) {
			matched = append(matched, b.Clone())
		}
	}
	r.mu.RUnlock()

	desc := !strings.EqualFold(filter.SortOrder, "ASC")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := sortValue(matched[i], filter.SortBy), sortValue(matched[j], filter.SortBy)
		if desc {
			return a > b
		}
		return a < b
	})

	total := len(matched)
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start >= total {
		return []*Booking{}, total, nil
	}
	end := min(start+pageSize, total)
	return matched[start:end], total, nil
}

func (r *memoryRepository) Save(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.bookings[b.ID]
	if exists && stored.Version != b.Version {
		return ErrStaleWrite
	}
	if !exists && b.Version != 0 {
		return ErrNotFound
	}

	if b.Status.IsActive() {
		want, err := timerange.ParseRange(b.StartTime, b.EndTime)
		if err != nil {
			return err
		}
		for id, other := range r.bookings {
			if id == b.ID || !other.Status.IsActive() || other.RoomName != b.RoomName || other.Date != b.Date {
				continue
			}
			have, err := timerange.ParseRange(other.StartTime, other.EndTime)
			if err == nil && want.Overlaps(have) {
				return ErrSlotTaken
			}
		}
	}

	b.Version++
	r.bookings[b.ID] = b.Clone()
	return nil
}

func matchesFilter(b *Booking, f Filter) bool {
	switch {
	case f.RoomName != "" && b.RoomName != f.RoomName:
		return false
	case f.Date != "" && b.Date != f.Date:
		return false
	case f.Status != "" && string(b.Status) != f.Status:
		return false
	case f.BookedByUserID != "" && b.BookedBy.UserID != f.BookedByUserID:
		return false
	case f.AssignedManagerID != "" && (b.AssignedManager == nil || b.AssignedManager.UserID != f.AssignedManagerID):
		return false
	}
	if f.VisibleToUserID != "" {
		mine := b.BookedBy.UserID == f.VisibleToUserID
		assigned := b.AssignedManager != nil && b.AssignedManager.UserID == f.VisibleToUserID
		if !mine && !assigned {
			return false
		}
	}
	return true
}

func sortValue(b *Booking, sortBy string) string {
	switch sortBy {
	case "created_at":
		return b.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000")
	case "status":
		return string(b.Status)
	case "room_name":
		return b.RoomName
	default:
		return b.Date + " " + b.StartTime
	}
}
