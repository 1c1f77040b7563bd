package booking

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound         = apperror.New(http.StatusNotFound, apperror.KindNotFound, "booking not found")
	ErrPermissionDenied = apperror.New(http.StatusForbidden, apperror.KindForbidden, "permission denied")
	ErrConcurrentUpdate = apperror.New(http.StatusConflict, apperror.KindConflict, "booking was modified concurrently, please retry")
)

// Storage level signals returned by repositories.
var (
	// ErrSlotTaken means the store refused a write that would create two
	// overlapping active bookings for the same room-day.
	ErrSlotTaken = errors.New("booking slot already taken")
	// ErrStaleWrite means the booking changed since it was read.
	ErrStaleWrite = errors.New("booking version is stale")
)

// FieldError names the input field a validation failure refers to.
type FieldError struct {
	Field string `json:"field"`
}

func validationError(field, format string, args ...any) error {
	return apperror.WithDetails(http.StatusBadRequest, apperror.KindValidation,
		fmt.Sprintf(format, args...), FieldError{Field: field})
}

// NewValidationError reports invalid input for field. It is used by callers
// that resolve input before it reaches the service, such as manager lookups.
func NewValidationError(field, message string) error {
	return validationError(field, "%s", message)
}

// ConflictDetails describes the booking that already holds a requested slot.
type ConflictDetails struct {
	BookingID string `json:"booking_id"`
	RoomName  string `json:"room_name"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	BookedBy  string `json:"booked_by"`
	Status    Status `json:"status"`
}

func conflictError(existing *Booking) error {
	d := ConflictDetails{
		BookingID: existing.ID,
		RoomName:  existing.RoomName,
		Date:      existing.Date,
		StartTime: existing.StartTime,
		EndTime:   existing.EndTime,
		BookedBy:  existing.BookedBy.Name,
		Status:    existing.Status,
	}
	msg := fmt.Sprintf("room %s is already booked by %s from %s to %s on %s",
		d.RoomName, d.BookedBy, d.StartTime, d.EndTime, d.Date)
	return apperror.WithDetails(http.StatusConflict, apperror.KindConflict, msg, d)
}

// TransitionDetails carries the status a booking is in and the change that was refused.
type TransitionDetails struct {
	Current   Status `json:"current"`
	Attempted string `json:"attempted"`
}

func transitionError(current Status, attempted string) error {
	return apperror.WithDetails(http.StatusConflict, apperror.KindInvalidTransition,
		fmt.Sprintf("cannot %s a booking that is %s", attempted, current),
		TransitionDetails{Current: current, Attempted: attempted})
}

// ConflictOf returns the details of a scheduling conflict error.
func ConflictOf(err error) (ConflictDetails, bool) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		d, ok := appErr.Details.(ConflictDetails)
		return d, ok
	}
	return ConflictDetails{}, false
}

// TransitionOf returns the details of an invalid transition error.
func TransitionOf(err error) (TransitionDetails, bool) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		d, ok := appErr.Details.(TransitionDetails)
		return d, ok
	}
	return TransitionDetails{}, false
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// snakeCase maps a Go field name to the snake_case name clients send.
func snakeCase(field string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(field, "${1}_${2}"))
}
