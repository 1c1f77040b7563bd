package booking

import (
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 480
	MinAttendees       = 1
	MaxAttendees       = 100
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a room and count toward conflicts.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

// IsActive reports whether s holds its room slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Actor is the identity performing an operation, as supplied by the
// identity layer. It doubles as the requester/approver snapshot stored on
// a booking.
type Actor struct {
	UserID     string
	Name       string
	Email      string
	EmployeeID string
	Department string
	Role       auth.Role
}

// ManagerRef points at the manager a requester asked to review the booking.
type ManagerRef struct {
	UserID string
	Name   string
	Email  string
}

type Booking struct {
	ID          string
	RoomName    string
	Date        string // YYYY-MM-DD
	StartTime   string // HH:MM
	EndTime     string // HH:MM
	Purpose     string
	Description string
	Attendees   int
	Status      Status

	// BookedBy is captured at creation and never refreshed from the user record.
	BookedBy        Actor
	AssignedManager *ManagerRef
	ApprovedBy      *Actor
	ApprovedAt      *time.Time
	RejectionReason string
	Priority        Priority
	Urgent          bool

	CreatedAt   time.Time
	SubmittedAt time.Time
	UpdatedAt   time.Time

	// Version is bumped on every write; saves are rejected when it is stale.
	Version int
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.AssignedManager != nil {
		m := *b.AssignedManager
		c.AssignedManager = &m
	}
	if b.ApprovedBy != nil {
		a := *b.ApprovedBy
		c.ApprovedBy = &a
	}
	if b.ApprovedAt != nil {
		t := *b.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}

// SlotKey identifies the room-day a booking competes for.
func (b *Booking) SlotKey() string {
	return slotKey(b.RoomName, b.Date)
}

func slotKey(room, date string) string {
	return room + "\x00" + date
}

type Filter struct {
	RoomName          string
	Date              string
	Status            string
	BookedByUserID    string
	AssignedManagerID string
	// VisibleToUserID restricts results to bookings requested by, or
	// assigned for review to, the given user.
	VisibleToUserID string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}
