package booking

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/room-booking-backend/internal/timerange"
)

type CreateRequest struct {
	RoomName        string `validate:"required,max=100"`
	Date            string `validate:"required,datetime=2006-01-02"`
	StartTime       string `validate:"required"`
	EndTime         string // optional when Duration is set
	Duration        time.Duration
	Attendees       int      `validate:"min=1,max=100"`
	Purpose         string   `validate:"required,max=200"`
	Description     string   `validate:"max=2000"`
	Priority        Priority `validate:"omitempty,oneof=low normal high"`
	Urgent          bool
	AssignedManager *ManagerRef
}

// UpdateRequest carries a partial edit. Nil fields are left untouched.
type UpdateRequest struct {
	RoomName        *string
	Date            *string
	StartTime       *string
	EndTime         *string
	Duration        *time.Duration
	Purpose         *string
	Description     *string
	Attendees       *int
	Priority        *Priority
	Urgent          *bool
	AssignedManager *ManagerRef
	Status          *Status
	// Note is stored as the rejection or cancellation reason when Status changes.
	Note string
}

func (r UpdateRequest) touchesSchedule() bool {
	return r.RoomName != nil || r.Date != nil || r.StartTime != nil || r.EndTime != nil || r.Duration != nil
}

func (r UpdateRequest) touchesFields() bool {
	return r.touchesSchedule() || r.Purpose != nil || r.Description != nil || r.Attendees != nil ||
		r.Priority != nil || r.Urgent != nil || r.AssignedManager != nil
}

type Service interface {
	Create(ctx context.Context, actor Actor, req CreateRequest) (*Booking, error)
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Availability(ctx context.Context, room, date string) ([]*Booking, error)
	Approve(ctx context.Context, id string, actor Actor, notes string) (*Booking, error)
	Reject(ctx context.Context, id string, actor Actor, notes string) (*Booking, error)
	Cancel(ctx context.Context, id string, actor Actor, reason string) (*Booking, error)
	Update(ctx context.Context, id string, actor Actor, req UpdateRequest) (*Booking, error)
	FindConflict(ctx context.Context, room, date, start, end, excludeID string) (*Booking, error)
	DisplayStatus(b *Booking) DisplayStatus
}

// ServiceConfig holds the optional collaborators of the booking service.
type ServiceConfig struct {
	// Location is the zone wall-clock times and "today" are evaluated in. Defaults to UTC.
	Location    *time.Location
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
	Subscribers []Subscriber
}

const maxLockAttempts = 3

var validate = validator.New(validator.WithRequiredStructEnabled())

type service struct {
	repo    Repository
	checker *ConflictChecker
	locks   *slotLocks
	events  *dispatcher
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
	newID   func() string
}

func NewService(repo Repository, cfg ServiceConfig) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	logger := cfg.Logger.With("service", "booking")
	return &service{
		repo:    repo,
		checker: NewConflictChecker(repo),
		locks:   newSlotLocks(),
		events:  &dispatcher{subscribers: cfg.Subscribers, logger: logger},
		logger:  logger,
		loc:     cfg.Location,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
}

func (s *service) Create(ctx context.Context, actor Actor, req CreateRequest) (*Booking, error) {
	if actor.UserID == "" {
		return nil, ErrPermissionDenied
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	end, err := resolveEnd(req.StartTime, req.EndTime, req.Duration)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	b := &Booking{
		ID:              s.newID(),
		RoomName:        strings.TrimSpace(req.RoomName),
		Date:            req.Date,
		StartTime:       req.StartTime,
		EndTime:         end,
		Purpose:         strings.TrimSpace(req.Purpose),
		Description:     strings.TrimSpace(req.Description),
		Attendees:       req.Attendees,
		BookedBy:        actor,
		AssignedManager: req.AssignedManager,
		Priority:        priority,
		Urgent:          req.Urgent,
	}
	if err := s.normalizeSchedule(b, now, true); err != nil {
		return nil, err
	}
	if err := validateStruct(fieldsOf(b)); err != nil {
		return nil, err
	}
	initialize(b, actor, now)

	logger := s.logger.With("operation", "create", "room", b.RoomName, "date", b.Date)

	unlock := s.locks.lock(b.SlotKey())
	err = s.save(ctx, nil, b)
	unlock()
	if err != nil {
		s.logFailure(ctx, logger, err)
		return nil, err
	}

	logger.InfoContext(ctx, "booking created", "booking_id", b.ID, "status", b.Status)
	s.events.publish(ctx, Event{Kind: EventCreated, Booking: *b.Clone(), Actor: actor, At: now})
	return b, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Booking, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	return s.repo.List(ctx, filter)
}

// Availability returns the active bookings of a room-day ordered by start time.
func (s *service) Availability(ctx context.Context, room, date string) ([]*Booking, error) {
	if strings.TrimSpace(room) == "" {
		return nil, validationError("room_name", "room name is required")
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, validationError("date", "date must be in YYYY-MM-DD format")
	}
	list, err := s.repo.FindByRoomAndDate(ctx, strings.TrimSpace(room), date, ActiveStatuses)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime < list[j].StartTime })
	return list, nil
}

func (s *service) FindConflict(ctx context.Context, room, date, start, end, excludeID string) (*Booking, error) {
	return s.checker.FindConflict(ctx, room, date, start, end, excludeID)
}

func (s *service) DisplayStatus(b *Booking) DisplayStatus {
	return Derive(b, s.now(), s.loc)
}

func (s *service) Approve(ctx context.Context, id string, actor Actor, notes string) (*Booking, error) {
	return s.mutate(ctx, "approve", id, actor, currentSlot, func(cur *Booking) (*Booking, EventKind, string, error) {
		next := cur.Clone()
		if err := transition(next, StatusApproved, actor, notes, s.now().UTC()); err != nil {
			return nil, "", "", err
		}
		return next, EventApproved, notes, nil
	})
}

func (s *service) Reject(ctx context.Context, id string, actor Actor, notes string) (*Booking, error) {
	return s.mutate(ctx, "reject", id, actor, currentSlot, func(cur *Booking) (*Booking, EventKind, string, error) {
		next := cur.Clone()
		if err := transition(next, StatusRejected, actor, strings.TrimSpace(notes), s.now().UTC()); err != nil {
			return nil, "", "", err
		}
		return next, EventRejected, notes, nil
	})
}

func (s *service) Cancel(ctx context.Context, id string, actor Actor, reason string) (*Booking, error) {
	return s.mutate(ctx, "cancel", id, actor, currentSlot, func(cur *Booking) (*Booking, EventKind, string, error) {
		if !actor.canManage(cur) {
			return nil, "", "", ErrPermissionDenied
		}
		next := cur.Clone()
		if err := transition(next, StatusCancelled, actor, strings.TrimSpace(reason), s.now().UTC()); err != nil {
			return nil, "", "", err
		}
		return next, EventCancelled, reason, nil
	})
}

func (s *service) Update(ctx context.Context, id string, actor Actor, req UpdateRequest) (*Booking, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, validationError("status", "invalid booking status")
	}

	// Hold both the current and the target room-day while moving a booking.
	keysFor := func(cur *Booking) []string {
		room, date := cur.RoomName, cur.Date
		if req.RoomName != nil {
			room = strings.TrimSpace(*req.RoomName)
		}
		if req.Date != nil {
			date = *req.Date
		}
		return []string{cur.SlotKey(), slotKey(room, date)}
	}

	return s.mutate(ctx, "update", id, actor, keysFor, func(cur *Booking) (*Booking, EventKind, string, error) {
		if !actor.canManage(cur) {
			return nil, "", "", ErrPermissionDenied
		}
		if cur.Status.IsTerminal() {
			return nil, "", "", transitionError(cur.Status, "update")
		}
		if req.touchesFields() && cur.Status != StatusPending && !actor.can(capEditApproved) {
			return nil, "", "", transitionError(cur.Status, "edit")
		}

		now := s.now().UTC()
		next := cur.Clone()
		if err := applyFields(next, cur, req); err != nil {
			return nil, "", "", err
		}
		if req.touchesSchedule() {
			if err := s.normalizeSchedule(next, now, true); err != nil {
				return nil, "", "", err
			}
		}
		if err := validateStruct(fieldsOf(next)); err != nil {
			return nil, "", "", err
		}

		kind := EventUpdated
		if req.Status != nil && *req.Status != cur.Status {
			if !actor.can(capSetStatus) {
				return nil, "", "", ErrPermissionDenied
			}
			if err := transition(next, *req.Status, actor, strings.TrimSpace(req.Note), now); err != nil {
				return nil, "", "", err
			}
			kind = eventForStatus(next.Status)
		}

		next.UpdatedAt = now
		return next, kind, req.Note, nil
	})
}

func currentSlot(cur *Booking) []string {
	return []string{cur.SlotKey()}
}

// mutate runs apply against a freshly read booking while holding the
// room-day locks it needs, saves the result and publishes the event.
// Nothing is written when apply or any check fails.
func (s *service) mutate(
	ctx context.Context,
	op, id string,
	actor Actor,
	keysFor func(*Booking) []string,
	apply func(cur *Booking) (*Booking, EventKind, string, error),
) (*Booking, error) {
	logger := s.logger.With("operation", op, "booking_id", id, "actor_id", actor.UserID)

	var (
		next *Booking
		kind EventKind
		note string
	)
	err := s.withLockedBooking(ctx, id, keysFor, func(cur *Booking) error {
		var err error
		next, kind, note, err = apply(cur)
		if err != nil {
			return err
		}
		err = s.save(ctx, cur, next)
		if errors.Is(err, ErrStaleWrite) {
			return s.staleWriteError(ctx, cur, op)
		}
		return err
	})
	if err != nil {
		s.logFailure(ctx, logger, err)
		return nil, err
	}

	logger.InfoContext(ctx, "booking "+string(kind), "status", next.Status)
	s.events.publish(ctx, Event{Kind: kind, Booking: *next.Clone(), Actor: actor, Note: note, At: next.UpdatedAt})
	return next, nil
}

// withLockedBooking reads the booking, locks the room-days keysFor names and
// re-reads it under the lock. When the booking moved between the two reads
// the locks are retaken for its new room-day, giving up with
// ErrConcurrentUpdate after maxLockAttempts.
func (s *service) withLockedBooking(ctx context.Context, id string, keysFor func(*Booking) []string, fn func(cur *Booking) error) error {
	for attempt := 1; ; attempt++ {
		peek, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		keys := sortedKeys(keysFor(peek))

		unlock := s.locks.lock(keys...)
		cur, err := s.repo.FindByID(ctx, id)
		if err != nil {
			unlock()
			return err
		}
		if !slices.Equal(keys, sortedKeys(keysFor(cur))) {
			unlock()
			if attempt < maxLockAttempts {
				continue
			}
			return ErrConcurrentUpdate
		}
		err = fn(cur)
		unlock()
		return err
	}
}

func sortedKeys(keys []string) []string {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	return slices.Compact(keys)
}

// save re-checks conflicts when next would newly occupy a slot and writes it.
// before is nil for new bookings.
func (s *service) save(ctx context.Context, before, next *Booking) error {
	if next.Status.IsActive() && needsConflictCheck(before, next) {
		conflict, err := s.checker.FindConflict(ctx, next.RoomName, next.Date, next.StartTime, next.EndTime, next.ID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflictError(conflict)
		}
	}

	err := s.repo.Save(ctx, next)
	if errors.Is(err, ErrSlotTaken) {
		// The store caught a write that raced past the check above.
		conflict, findErr := s.checker.FindConflict(ctx, next.RoomName, next.Date, next.StartTime, next.EndTime, next.ID)
		if findErr == nil && conflict != nil {
			return conflictError(conflict)
		}
		return apperror.Wrap(err, ErrConcurrentUpdate.Code, apperror.KindConflict, "requested time slot is no longer available")
	}
	return err
}

func needsConflictCheck(before, next *Booking) bool {
	if before == nil {
		return true
	}
	if next.Status == StatusApproved && before.Status != StatusApproved {
		return true
	}
	return before.RoomName != next.RoomName || before.Date != next.Date ||
		before.StartTime != next.StartTime || before.EndTime != next.EndTime
}

// staleWriteError reports a lost race on the same booking. If its status
// moved on, the caller attempted a transition that is no longer legal.
func (s *service) staleWriteError(ctx context.Context, read *Booking, op string) error {
	latest, err := s.repo.FindByID(ctx, read.ID)
	if err != nil {
		return err
	}
	if latest.Status != read.Status {
		return transitionError(latest.Status, op)
	}
	return ErrConcurrentUpdate
}

func (s *service) logFailure(ctx context.Context, logger *slog.Logger, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		logger.ErrorContext(ctx, "booking operation failed", "error", err)
		return
	}
	logger.InfoContext(ctx, "booking operation refused", "kind", kind, "error", err)
}

// normalizeSchedule validates the date and time range of b and rewrites the
// times in zero padded form. Past dates are refused when checkPast is set.
func (s *service) normalizeSchedule(b *Booking, now time.Time, checkPast bool) error {
	if _, err := time.Parse(time.DateOnly, b.Date); err != nil {
		return validationError("date", "date must be in YYYY-MM-DD format")
	}
	if checkPast && b.Date < now.In(s.loc).Format(time.DateOnly) {
		return validationError("date", "cannot book a date in the past")
	}
	r, err := parseSlot(b.StartTime, b.EndTime)
	if err != nil {
		return err
	}
	if m := r.Minutes(); m < MinDurationMinutes || m > MaxDurationMinutes {
		return validationError("duration", "booking must last between %d and %d minutes", MinDurationMinutes, MaxDurationMinutes)
	}
	b.StartTime = timerange.FormatMinutes(r.Start)
	b.EndTime = timerange.FormatMinutes(r.End)
	return nil
}

// resolveEnd returns the explicit end time, or start+d when only a duration is given.
func resolveEnd(start, end string, d time.Duration) (string, error) {
	if end != "" {
		return end, nil
	}
	if d <= 0 {
		return "", validationError("end_time", "either end time or duration is required")
	}
	e, ok, err := timerange.EndAfter(start, d)
	if err != nil {
		return "", validationError("start_time", "start time must be in HH:MM format")
	}
	if !ok {
		return "", validationError("duration", "booking must end before midnight")
	}
	return e, nil
}

// applyFields copies the requested edits onto next. When only the start
// moves, the booking keeps its length.
func applyFields(next, cur *Booking, req UpdateRequest) error {
	if req.RoomName != nil {
		next.RoomName = strings.TrimSpace(*req.RoomName)
	}
	if req.Date != nil {
		next.Date = *req.Date
	}
	if req.StartTime != nil {
		next.StartTime = *req.StartTime
	}

	switch {
	case req.EndTime != nil:
		next.EndTime = *req.EndTime
	case req.Duration != nil:
		end, err := resolveEnd(next.StartTime, "", *req.Duration)
		if err != nil {
			return err
		}
		next.EndTime = end
	case req.StartTime != nil:
		old, err := timerange.ParseRange(cur.StartTime, cur.EndTime)
		if err != nil {
			return validationError("end_time", "end time is required")
		}
		end, err := resolveEnd(next.StartTime, "", time.Duration(old.Minutes())*time.Minute)
		if err != nil {
			return err
		}
		next.EndTime = end
	}

	if req.Purpose != nil {
		next.Purpose = strings.TrimSpace(*req.Purpose)
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if req.Attendees != nil {
		next.Attendees = *req.Attendees
	}
	if req.Priority != nil {
		next.Priority = *req.Priority
	}
	if req.Urgent != nil {
		next.Urgent = *req.Urgent
	}
	if req.AssignedManager != nil {
		m := *req.AssignedManager
		next.AssignedManager = &m
	}
	return nil
}

// bookingFields is the validated shape of a booking after edits are applied.
type bookingFields struct {
	RoomName    string   `validate:"required,max=100"`
	Date        string   `validate:"required,datetime=2006-01-02"`
	StartTime   string   `validate:"required"`
	EndTime     string   `validate:"required"`
	Attendees   int      `validate:"min=1,max=100"`
	Purpose     string   `validate:"required,max=200"`
	Description string   `validate:"max=2000"`
	Priority    Priority `validate:"omitempty,oneof=low normal high"`
}

func fieldsOf(b *Booking) bookingFields {
	return bookingFields{
		RoomName:    b.RoomName,
		Date:        b.Date,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Attendees:   b.Attendees,
		Purpose:     b.Purpose,
		Description: b.Description,
		Priority:    b.Priority,
	}
}

// validateStruct runs the validator tags and reports the first failing field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError("", "invalid input")
	}

	fe := verrs[0]
	field := snakeCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return validationError(field, "%s is required", field)
	case "datetime":
		return validationError(field, "%s must be in YYYY-MM-DD format", field)
	case "min":
		return validationError(field, "%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return validationError(field, "%s must be at most %s characters", field, fe.Param())
		}
		return validationError(field, "%s must be at most %s", field, fe.Param())
	case "oneof":
		return validationError(field, "%s must be one of: %s", field, fe.Param())
	}
	return validationError(field, "%s is invalid", field)
}
