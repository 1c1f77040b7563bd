package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/booking"
	"github.com/nekogravitycat/room-booking-backend/internal/history"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/request"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/response"
	"github.com/nekogravitycat/room-booking-backend/internal/user"
)

// UserDirectory resolves the profile behind an authenticated user id.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// HistoryReader serves the recorded steps of a booking.
type HistoryReader interface {
	ListForBooking(ctx context.Context, bookingID string) ([]*history.Entry, error)
}

type Handler struct {
	service booking.Service
	users   UserDirectory
	history HistoryReader
}

func NewHandler(service booking.Service, users UserDirectory, trail HistoryReader) *Handler {
	return &Handler{
		service: service,
		users:   users,
		history: trail,
	}
}

var errUnauthenticated = apperror.New(http.StatusUnauthorized, apperror.KindUnauthorized, "unauthorized")

// currentActor builds the booking actor from the token subject and the
// stored profile. The role comes from the profile so that role changes
// apply without waiting for the token to expire.
func (h *Handler) currentActor(c *gin.Context) (booking.Actor, error) {
	userID := auth.GetUserID(c)
	if userID == "" {
		return booking.Actor{}, errUnauthenticated
	}

	u, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return booking.Actor{}, errUnauthenticated
		}
		return booking.Actor{}, err
	}
	if !u.IsActive {
		return booking.Actor{}, booking.ErrPermissionDenied
	}

	return booking.Actor{
		UserID:     u.ID,
		Name:       u.Name(),
		Email:      u.Email,
		EmployeeID: u.EmployeeID,
		Department: u.Department,
		Role:       u.Role,
	}, nil
}

// resolveManager turns a manager_id into the reference stored on a booking.
func (h *Handler) resolveManager(ctx context.Context, managerID string) (*booking.ManagerRef, error) {
	if managerID == "" {
		return nil, nil
	}
	m, err := h.users.GetByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, booking.NewValidationError("manager_id", "assigned manager does not exist")
		}
		return nil, err
	}
	if !m.IsActive || !booking.CanDecide(m.Role) {
		return nil, booking.NewValidationError("manager_id", "assigned manager must be an active manager, hr or admin user")
	}
	return &booking.ManagerRef{UserID: m.ID, Name: m.Name(), Email: m.Email}, nil
}

func (h *Handler) respond(c *gin.Context, status int, b *booking.Booking) {
	c.JSON(status, NewBookingResponse(b, h.service.DisplayStatus(b)))
}

func (h *Handler) List(c *gin.Context) {
	var req ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	actor, err := h.currentActor(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := booking.Filter{
		RoomName:          strings.TrimSpace(req.RoomName),
		Date:              req.Date,
		Status:            req.Status,
		BookedByUserID:    req.UserID,
		AssignedManagerID: req.ManagerID,
		Page:              req.Page,
		PageSize:          req.PageSize,
		SortBy:            req.SortBy,
		SortOrder:         strings.ToUpper(req.SortOrder),
	}
	// Employees only see bookings they made or were asked to review.
	if !actor.IsElevated() || req.Mine {
		filter.VisibleToUserID = actor.UserID
	}

	bookings, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b, h.service.DisplayStatus(b))
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

func (h *Handler) Get(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	actor, err := h.currentActor(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !booking.CanView(b, actor) {
		response.Error(c, booking.ErrPermissionDenied)
		return
	}

	h.respond(c, http.StatusOK, b)
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	actor, err := h.currentActor(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	manager, err := h.resolveManager(ctx, body.ManagerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	b, err := h.service.Create(ctx, actor, body.toServiceRequest(manager))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respond(c, http.StatusCreated, b)
}

func (h *Handler) Update(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	var body UpdateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body", err)
		return
	}

	actor, err := h.currentActor(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	var manager *booking.ManagerRef
	if body.ManagerID != nil {
		manager, err = h.resolveManager(ctx, *body.ManagerID)
		if err != nil {
			response.Error(c, err)
			return
		}
	}

	b, err := h.service.Update(ctx, uri.ID, actor, body.toServiceRequest(manager))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respond(c, http.StatusOK, b)
}

type decisionFunc func(ctx context.Context, id string, actor booking.Actor, notes string) (*booking.Booking, error)

// decide handles approve, reject and cancel, which share the same shape:
// a booking id in the path and optional notes in the body.
func (h *Handler) decide(apply decisionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var uri request.ByIDRequest
		if err := c.ShouldBindUri(&uri); err != nil {
			response.BadRequest(c, "invalid request", err)
			return
		}

		var body DecisionRequest
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, "invalid request body", err)
			return
		}

		actor, err := h.currentActor(c)
		if err != nil {
			response.Error(c, err)
			return
		}

		b, err := apply(c.Request.Context(), uri.ID, actor, strings.TrimSpace(body.Notes))
		if err != nil {
			response.Error(c, err)
			return
		}

		h.respond(c, http.StatusOK, b)
	}
}

func (h *Handler) Approve(c *gin.Context) { h.decide(h.service.Approve)(c) }

func (h *Handler) Reject(c *gin.Context) { h.decide(h.service.Reject)(c) }

func (h *Handler) Cancel(c *gin.Context) { h.decide(h.service.Cancel)(c) }

// History returns the audit trail of a booking the caller may view.
func (h *Handler) History(c *gin.Context) {
	var req request.ByIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}

	actor, err := h.currentActor(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	b, err := h.service.GetByID(ctx, req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !booking.CanView(b, actor) {
		response.Error(c, booking.ErrPermissionDenied)
		return
	}

	entries, err := h.history.ListForBooking(ctx, b.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = NewHistoryEntryResponse(e)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Availability lists the occupied slots of a room on one day.
func (h *Handler) Availability(c *gin.Context) {
	var uri AvailabilityRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid request", err)
		return
	}
	var query AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "invalid query parameters", err)
		return
	}

	list, err := h.service.Availability(c.Request.Context(), uri.Room, query.Date)
	if err != nil {
		response.Error(c, err)
		return
	}

	slots := make([]SlotResponse, len(list))
	for i, b := range list {
		slots[i] = SlotResponse{
			BookingID: b.ID,
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			Status:    string(b.Status),
			BookedBy:  b.BookedBy.Name,
			Purpose:   b.Purpose,
		}
	}

	c.JSON(http.StatusOK, AvailabilityResponse{
		RoomName: strings.TrimSpace(uri.Room),
		Date:     query.Date,
		Booked:   slots,
	})
}
