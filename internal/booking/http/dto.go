package http

import (
	"time"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/booking"
	"github.com/nekogravitycat/room-booking-backend/internal/history"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

// ListBookingsRequest defines query parameters for listing bookings.
type ListBookingsRequest struct {
	request.ListParams
	RoomName  string `form:"room_name"`
	Date      string `form:"date" binding:"omitempty,datetime=2006-01-02"`
	Status    string `form:"status" binding:"omitempty,oneof=pending approved rejected cancelled"`
	UserID    string `form:"user_id" binding:"omitempty,uuid"`
	ManagerID string `form:"manager_id" binding:"omitempty,uuid"`
	// Mine limits elevated users to their own and assigned bookings.
	Mine   bool   `form:"mine"`
	SortBy string `form:"sort_by" binding:"omitempty,oneof=date created_at status room_name"`
}

// AvailabilityRequest binds GET /rooms/:room/availability.
type AvailabilityRequest struct {
	Room string `uri:"room" binding:"required"`
}

type AvailabilityQuery struct {
	Date string `form:"date" binding:"required"`
}

type PersonTag struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Department string    `json:"department,omitempty"`
	Role       auth.Role `json:"role,omitempty"`
}

type BookingResponse struct {
	ID              string     `json:"id"`
	RoomName        string     `json:"room_name"`
	Date            string     `json:"date"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Purpose         string     `json:"purpose"`
	Description     string     `json:"description"`
	Attendees       int        `json:"attendees"`
	Status          string     `json:"status"`
	DisplayStatus   string     `json:"display_status"`
	BookedBy        PersonTag  `json:"booked_by"`
	AssignedManager *PersonTag `json:"assigned_manager"`
	ApprovedBy      *PersonTag `json:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Priority        string     `json:"priority"`
	Urgent          bool       `json:"urgent"`
	CreatedAt       time.Time  `json:"created_at"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking, display booking.DisplayStatus) BookingResponse {
	resp := BookingResponse{
		ID:              b.ID,
		RoomName:        b.RoomName,
		Date:            b.Date,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		DurationMinutes: durationMinutes(b),
		Purpose:         b.Purpose,
		Description:     b.Description,
		Attendees:       b.Attendees,
		Status:          string(b.Status),
		DisplayStatus:   string(display),
		BookedBy:        actorTag(b.BookedBy),
		ApprovedAt:      b.ApprovedAt,
		RejectionReason: b.RejectionReason,
		Priority:        string(b.Priority),
		Urgent:          b.Urgent,
		CreatedAt:       b.CreatedAt,
		SubmittedAt:     b.SubmittedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if m := b.AssignedManager; m != nil {
		resp.AssignedManager = &PersonTag{ID: m.UserID, Name: m.Name, Email: m.Email}
	}
	if a := b.ApprovedBy; a != nil {
		tag := actorTag(*a)
		resp.ApprovedBy = &tag
	}
	return resp
}

func actorTag(a booking.Actor) PersonTag {
	return PersonTag{
		ID:         a.UserID,
		Name:       a.Name,
		Email:      a.Email,
		EmployeeID: a.EmployeeID,
		Department: a.Department,
		Role:       a.Role,
	}
}

// SlotResponse is one occupied slot in a room-day availability listing.
type SlotResponse struct {
	BookingID string `json:"booking_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	BookedBy  string `json:"booked_by"`
	Purpose   string `json:"purpose"`
}

type AvailabilityResponse struct {
	RoomName string         `json:"room_name"`
	Date     string         `json:"date"`
	Booked   []SlotResponse `json:"booked"`
}

// CreateBookingRequest is the body of POST /bookings. Either end_time or
// duration_minutes is required; end_time wins when both are sent.
type CreateBookingRequest struct {
	RoomName        string `json:"room_name"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=0"`
	Attendees       int    `json:"attendees"`
	Purpose         string `json:"purpose"`
	Description     string `json:"description"`
	Priority        string `json:"priority" binding:"omitempty,oneof=low normal high"`
	Urgent          bool   `json:"urgent"`
	ManagerID       string `json:"manager_id" binding:"omitempty,uuid"`
}

func (r *CreateBookingRequest) toServiceRequest(manager *booking.ManagerRef) booking.CreateRequest {
	return booking.CreateRequest{
		RoomName:        r.RoomName,
		Date:            r.Date,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Duration:        time.Duration(r.DurationMinutes) * time.Minute,
		Attendees:       r.Attendees,
		Purpose:         r.Purpose,
		Description:     r.Description,
		Priority:        booking.Priority(r.Priority),
		Urgent:          r.Urgent,
		AssignedManager: manager,
	}
}

// UpdateBookingRequest is the body of PATCH /bookings/:id.
type UpdateBookingRequest struct {
	RoomName        *string `json:"room_name"`
	Date            *string `json:"date"`
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=1"`
	Purpose         *string `json:"purpose"`
	Description     *string `json:"description"`
	Attendees       *int    `json:"attendees"`
	Priority        *string `json:"priority" binding:"omitempty,oneof=low normal high"`
	Urgent          *bool   `json:"urgent"`
	ManagerID       *string `json:"manager_id" binding:"omitempty,uuid"`
	Status          *string `json:"status" binding:"omitempty,oneof=pending approved rejected cancelled"`
	Note            string  `json:"note" binding:"max=500"`
}

func (r *UpdateBookingRequest) toServiceRequest(manager *booking.ManagerRef) booking.UpdateRequest {
	req := booking.UpdateRequest{
		RoomName:        r.RoomName,
		Date:            r.Date,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Purpose:         r.Purpose,
		Description:     r.Description,
		Attendees:       r.Attendees,
		Urgent:          r.Urgent,
		AssignedManager: manager,
		Note:            r.Note,
	}
	if r.DurationMinutes != nil {
		d := time.Duration(*r.DurationMinutes) * time.Minute
		req.Duration = &d
	}
	if r.Priority != nil {
		p := booking.Priority(*r.Priority)
		req.Priority = &p
	}
	if r.Status != nil {
		s := booking.Status(*r.Status)
		req.Status = &s
	}
	return req
}

// DecisionRequest is the optional body of approve, reject and cancel.
type DecisionRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

type HistoryEntryResponse struct {
	Event  string    `json:"event"`
	Status string    `json:"status"`
	Actor  PersonTag `json:"actor"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

func NewHistoryEntryResponse(e *history.Entry) HistoryEntryResponse {
	return HistoryEntryResponse{
		Event:  e.Event,
		Status: e.Status,
		Actor:  PersonTag{ID: e.ActorID, Name: e.ActorName, Role: auth.Role(e.ActorRole)},
		Note:   e.Note,
		At:     e.At,
	}
}

func durationMinutes(b *booking.Booking) int {
	r, err := timerange.ParseRange(b.StartTime, b.EndTime)
	if err != nil {
		return 0
	}
	return r.Minutes()
}
