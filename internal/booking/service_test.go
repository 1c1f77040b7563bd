package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const testDate = "2025-03-12"

var (
	erin = Actor{UserID: "u-erin", Name: "Erin Park", Email: "erin@example.com", EmployeeID: "E-1", Department: "Finance", Role: auth.RoleEmployee}
	omar = Actor{UserID: "u-omar", Name: "Omar Reyes", Email: "omar@example.com", EmployeeID: "E-2", Role: auth.RoleEmployee}
	maya = Actor{UserID: "u-maya", Name: "Maya Chen", Email: "maya@example.com", Role: auth.RoleManager}
	hana = Actor{UserID: "u-hana", Name: "Hana Ito", Email: "hana@example.com", Role: auth.RoleHR}
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleBookingEvent(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestService(t *testing.T, subs ...Subscriber) (Service, Repository) {
	t.Helper()
	repo := NewMemoryRepository()
	return newServiceOn(repo, subs...), repo
}

func newServiceOn(repo Repository, subs ...Subscriber) Service {
	return NewService(repo, ServiceConfig{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return testNow },
		Subscribers: subs,
	})
}

func request(room, start, end string) CreateRequest {
	return CreateRequest{
		RoomName:  room,
		Date:      testDate,
		StartTime: start,
		EndTime:   end,
		Attendees: 4,
		Purpose:   "Sprint planning",
	}
}

func mustCreate(t *testing.T, svc Service, actor Actor, req CreateRequest) *Booking {
	t.Helper()
	b, err := svc.Create(context.Background(), actor, req)
	require.NoError(t, err)
	return b
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperror.KindValidation, appErr.Kind, "error: %v", err)
	fe, ok := appErr.Details.(FieldError)
	require.True(t, ok)
	return fe.Field
}

func requireTransition(t *testing.T, err error, current Status, attempted string) {
	t.Helper()
	require.Equal(t, apperror.KindInvalidTransition, apperror.KindOf(err), "error: %v", err)
	d, ok := TransitionOf(err)
	require.True(t, ok)
	assert.Equal(t, current, d.Current)
	assert.Equal(t, attempted, d.Attempted)
}

func TestCreateInitialStatusFollowsRole(t *testing.T) {
	rec := &recorder{}
	svc, _ := newTestService(t, rec)

	pending := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))
	assert.Equal(t, StatusPending, pending.Status)
	assert.Nil(t, pending.ApprovedBy)
	assert.Nil(t, pending.ApprovedAt)
	assert.Equal(t, testNow, pending.SubmittedAt)
	assert.Equal(t, PriorityNormal, pending.Priority)
	assert.Equal(t, erin, pending.BookedBy)

	approved := mustCreate(t, svc, maya, request("Atlas", "14:00", "15:00"))
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, maya.UserID, approved.ApprovedBy.UserID)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, testNow, *approved.ApprovedAt)

	assert.Equal(t, []EventKind{EventCreated, EventCreated}, rec.kinds())
}

func TestCreateRejectsOverlapAndAllowsAdjacent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, erin, request("Room A", "10:00", "11:00"))

	_, err := svc.Create(ctx, omar, request("Room A", "10:30", "11:30"))
	require.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	d, ok := ConflictOf(err)
	require.True(t, ok)
	assert.Equal(t, first.ID, d.BookingID)
	assert.Equal(t, "Erin Park", d.BookedBy)
	assert.Equal(t, "10:00", d.StartTime)
	assert.Equal(t, "11:00", d.EndTime)
	assert.Contains(t, err.Error(), "Erin Park")

	adjacent := mustCreate(t, svc, omar, request("Room A", "11:00", "12:00"))
	assert.Equal(t, "11:00", adjacent.StartTime)

	otherRoom := mustCreate(t, svc, omar, request("Room B", "10:30", "11:30"))
	assert.Equal(t, StatusPending, otherRoom.Status)
}

func TestCreateValidation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		edit  func(r *CreateRequest)
		field string
	}{
		{"missing room", func(r *CreateRequest) { r.RoomName = "" }, "room_name"},
		{"malformed date", func(r *CreateRequest) { r.Date = "2025-13-01" }, "date"},
		{"past date", func(r *CreateRequest) { r.Date = "2025-03-09" }, "date"},
		{"malformed start", func(r *CreateRequest) { r.StartTime = "25:00" }, "start_time"},
		{"end before start", func(r *CreateRequest) { r.StartTime, r.EndTime = "11:00", "10:00" }, "end_time"},
		{"too short", func(r *CreateRequest) { r.EndTime = "10:10" }, "duration"},
		{"too long", func(r *CreateRequest) { r.StartTime, r.EndTime = "08:00", "17:00" }, "duration"},
		{"no attendees", func(r *CreateRequest) { r.Attendees = 0 }, "attendees"},
		{"too many attendees", func(r *CreateRequest) { r.Attendees = 101 }, "attendees"},
		{"missing purpose", func(r *CreateRequest) { r.Purpose = "" }, "purpose"},
		{"no end or duration", func(r *CreateRequest) { r.EndTime = "" }, "end_time"},
		{"duration past midnight", func(r *CreateRequest) {
			r.StartTime, r.EndTime, r.Duration = "23:00", "", 2*time.Hour
		}, "duration"},
		{"unknown priority", func(r *CreateRequest) { r.Priority = "critical" }, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("Atlas", "10:00", "11:00")
			tt.edit(&req)
			_, err := svc.Create(ctx, erin, req)
			assert.Equal(t, tt.field, validationField(t, err))
		})
	}

	stored, err := repo.FindByRoomAndDate(ctx, "Atlas", testDate, ActiveStatuses)
	require.NoError(t, err)
	assert.Empty(t, stored, "failed creates must not persist anything")
}

func TestCreateDerivesEndFromDuration(t *testing.T) {
	svc, _ := newTestService(t)

	req := request("Atlas", "9:30", "")
	req.Duration = 90 * time.Minute
	b := mustCreate(t, svc, erin, req)
	assert.Equal(t, "09:30", b.StartTime)
	assert.Equal(t, "11:00", b.EndTime)

	// An explicit end time wins over the duration.
	req = request("Atlas", "13:00", "14:00")
	req.Duration = 3 * time.Hour
	b = mustCreate(t, svc, erin, req)
	assert.Equal(t, "14:00", b.EndTime)
}

func TestCreateEvaluatesTodayInConfiguredZone(t *testing.T) {
	lateEvening := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepository(), ServiceConfig{
		Location: time.FixedZone("UTC+8", 8*60*60),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return lateEvening },
	})

	req := request("Atlas", "10:00", "11:00")
	req.Date = "2025-03-10" // already yesterday at UTC+8
	_, err := svc.Create(context.Background(), erin, req)
	assert.Equal(t, "date", validationField(t, err))

	req.Date = "2025-03-11"
	_, err = svc.Create(context.Background(), erin, req)
	assert.NoError(t, err)
}

func TestCreateRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), Actor{}, request("Atlas", "10:00", "11:00"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestApprove(t *testing.T) {
	rec := &recorder{}
	svc, _ := newTestService(t, rec)
	ctx := context.Background()

	b := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))

	t.Run("employee cannot approve", func(t *testing.T) {
		_, err := svc.Approve(ctx, b.ID, omar, "")
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("manager approves pending", func(t *testing.T) {
		approved, err := svc.Approve(ctx, b.ID, maya, "enjoy")
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, approved.Status)
		require.NotNil(t, approved.ApprovedBy)
		assert.Equal(t, maya.UserID, approved.ApprovedBy.UserID)
		require.NotNil(t, approved.ApprovedAt)
		assert.Equal(t, testNow, *approved.ApprovedAt)

		e := rec.last()
		assert.Equal(t, EventApproved, e.Kind)
		assert.Equal(t, "enjoy", e.Note)
		assert.Equal(t, maya.UserID, e.Actor.UserID)
	})

	t.Run("approving twice is an invalid transition", func(t *testing.T) {
		_, err := svc.Approve(ctx, b.ID, hana, "")
		requireTransition(t, err, StatusApproved, "approve")
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := svc.Approve(ctx, "missing", maya, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRejectFreesSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))

	rejected, err := svc.Reject(ctx, b.ID, hana, "room under renovation")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "room under renovation", rejected.RejectionReason)
	require.NotNil(t, rejected.ApprovedBy)
	assert.Equal(t, hana.UserID, rejected.ApprovedBy.UserID)

	_, err = svc.Approve(ctx, b.ID, maya, "")
	requireTransition(t, err, StatusRejected, "approve")

	_, err = svc.Cancel(ctx, b.ID, erin, "")
	requireTransition(t, err, StatusRejected, "cancel")

	// The rejected booking no longer holds the room.
	mustCreate(t, svc, omar, request("Atlas", "10:00", "11:00"))
}

func TestCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pending := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))

	_, err := svc.Cancel(ctx, pending.ID, omar, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	cancelled, err := svc.Cancel(ctx, pending.ID, erin, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.RejectionReason)

	_, err = svc.Cancel(ctx, pending.ID, erin, "")
	requireTransition(t, err, StatusCancelled, "cancel")

	// An elevated actor may cancel someone else's approved booking.
	other := mustCreate(t, svc, omar, request("Atlas", "10:00", "11:00"))
	_, err = svc.Approve(ctx, other.ID, maya, "")
	require.NoError(t, err)
	cancelled, err = svc.Cancel(ctx, other.ID, hana, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.RejectionReason)
}

func TestUpdate(t *testing.T) {
	rec := &recorder{}
	svc, repo := newTestService(t, rec)
	ctx := context.Background()

	b := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))
	blocker := mustCreate(t, svc, omar, request("Atlas", "14:00", "15:00"))

	t.Run("moving the start keeps the length", func(t *testing.T) {
		start := "12:00"
		updated, err := svc.Update(ctx, b.ID, erin, UpdateRequest{StartTime: &start})
		require.NoError(t, err)
		assert.Equal(t, "12:00", updated.StartTime)
		assert.Equal(t, "13:00", updated.EndTime)
		assert.Equal(t, EventUpdated, rec.last().Kind)
	})

	t.Run("extending over its own slot is not a conflict", func(t *testing.T) {
		end := "13:30"
		updated, err := svc.Update(ctx, b.ID, erin, UpdateRequest{EndTime: &end})
		require.NoError(t, err)
		assert.Equal(t, "13:30", updated.EndTime)
	})

	t.Run("moving into another booking conflicts and persists nothing", func(t *testing.T) {
		before, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)

		start := "14:30"
		_, err = svc.Update(ctx, b.ID, erin, UpdateRequest{StartTime: &start})
		require.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		d, ok := ConflictOf(err)
		require.True(t, ok)
		assert.Equal(t, blocker.ID, d.BookingID)

		after, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("others cannot edit", func(t *testing.T) {
		purpose := "hijack"
		_, err := svc.Update(ctx, b.ID, omar, UpdateRequest{Purpose: &purpose})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("employees cannot change status", func(t *testing.T) {
		status := StatusApproved
		_, err := svc.Update(ctx, b.ID, erin, UpdateRequest{Status: &status})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("unknown status", func(t *testing.T) {
		status := Status("archived")
		_, err := svc.Update(ctx, b.ID, maya, UpdateRequest{Status: &status})
		assert.Equal(t, "status", validationField(t, err))
	})

	t.Run("manager approves through update", func(t *testing.T) {
		status := StatusApproved
		updated, err := svc.Update(ctx, b.ID, maya, UpdateRequest{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, updated.Status)
		assert.Equal(t, EventApproved, rec.last().Kind)
	})

	t.Run("employees cannot edit approved bookings", func(t *testing.T) {
		purpose := "retro"
		_, err := svc.Update(ctx, b.ID, erin, UpdateRequest{Purpose: &purpose})
		requireTransition(t, err, StatusApproved, "edit")
	})

	t.Run("approved bookings cannot go back to pending", func(t *testing.T) {
		status := StatusPending
		_, err := svc.Update(ctx, b.ID, hana, UpdateRequest{Status: &status})
		requireTransition(t, err, StatusApproved, "reopen")
	})

	t.Run("terminal bookings are closed", func(t *testing.T) {
		_, err := svc.Cancel(ctx, b.ID, erin, "")
		require.NoError(t, err)

		purpose := "again"
		_, err = svc.Update(ctx, b.ID, maya, UpdateRequest{Purpose: &purpose})
		requireTransition(t, err, StatusCancelled, "update")
	})
}

func TestUpdateMovesAcrossRooms(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))
	mustCreate(t, svc, omar, request("Borealis", "10:30", "11:30"))

	room := "Borealis"
	_, err := svc.Update(ctx, b.ID, erin, UpdateRequest{RoomName: &room})
	require.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	start := "08:00"
	moved, err := svc.Update(ctx, b.ID, erin, UpdateRequest{RoomName: &room, StartTime: &start})
	require.NoError(t, err)
	assert.Equal(t, "Borealis", moved.RoomName)
	assert.Equal(t, "09:00", moved.EndTime)

	// The old slot is free again.
	mustCreate(t, svc, omar, request("Atlas", "10:00", "11:00"))
}

func TestDisplayStatusUsesServiceClock(t *testing.T) {
	svc, _ := newTestService(t)

	req := request("Atlas", "08:00", "10:00")
	req.Date = "2025-03-10"
	b := mustCreate(t, svc, maya, req)
	assert.Equal(t, DisplayInProgress, svc.DisplayStatus(b))
	assert.Equal(t, StatusApproved, b.Status, "derived status is never stored")

	later := mustCreate(t, svc, maya, request("Atlas", "10:00", "11:00"))
	assert.Equal(t, DisplayUpcoming, svc.DisplayStatus(later))

	pending := mustCreate(t, svc, erin, request("Atlas", "12:00", "13:00"))
	assert.Equal(t, DisplayStatus(StatusPending), svc.DisplayStatus(pending))
}

func TestAvailability(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	late := mustCreate(t, svc, erin, request("Atlas", "15:00", "16:00"))
	early := mustCreate(t, svc, maya, request("Atlas", "09:00", "10:00"))
	gone := mustCreate(t, svc, omar, request("Atlas", "11:00", "12:00"))
	_, err := svc.Cancel(ctx, gone.ID, omar, "")
	require.NoError(t, err)

	slots, err := svc.Availability(ctx, "Atlas", testDate)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, early.ID, slots[0].ID)
	assert.Equal(t, late.ID, slots[1].ID)

	_, err = svc.Availability(ctx, "Atlas", "12/03/2025")
	assert.Equal(t, "date", validationField(t, err))
}

func TestConcurrentCreatesNeverDoubleBook(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	const workers = 24
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := Actor{UserID: fmt.Sprintf("u-%d", i), Name: fmt.Sprintf("User %d", i), Role: auth.RoleEmployee}
			// Every request overlaps 10:00-10:30 but none are identical.
			start := fmt.Sprintf("09:%02d", 30+i%30)
			_, err := svc.Create(ctx, actor, request("Atlas", start, "10:45"))

			mu.Lock()
			defer mu.Unlock()
			switch apperror.KindOf(err) {
			case "":
				succeeded++
			case apperror.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)

	active, err := repo.FindByRoomAndDate(ctx, "Atlas", testDate, ActiveStatuses)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	b := mustCreate(t, svc, erin, request("Atlas", "10:00", "11:00"))

	approvers := []Actor{maya, hana, {UserID: "u-admin", Name: "Ada", Role: auth.RoleAdmin}}
	errs := make([]error, len(approvers))
	var wg sync.WaitGroup
	for i, a := range approvers {
		wg.Add(1)
		go func(i int, a Actor) {
			defer wg.Done()
			_, errs[i] = svc.Approve(ctx, b.ID, a, "")
		}(i, a)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireTransition(t, err, StatusApproved, "approve")
	}
	assert.Equal(t, 1, wins)
}

func TestSubscriberFailuresDoNotFailOperations(t *testing.T) {
	rec := &recorder{}
	failing := SubscriberFunc(func(ctx context.Context, e Event) error {
		return errors.New("mail server down")
	})
	panicking := SubscriberFunc(func(ctx context.Context, e Event) error {
		panic("boom")
	})
	svc, repo := newTestService(t, failing, panicking, rec)

	b, err := svc.Create(context.Background(), erin, request("Atlas", "10:00", "11:00"))
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, []EventKind{EventCreated}, rec.kinds())
}

func TestListFiltersVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := request("Atlas", "10:00", "11:00")
	req.AssignedManager = &ManagerRef{UserID: maya.UserID, Name: maya.Name}
	mustCreate(t, svc, erin, req)
	mustCreate(t, svc, omar, request("Atlas", "12:00", "13:00"))

	mine, total, err := svc.List(ctx, Filter{VisibleToUserID: erin.UserID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, erin.UserID, mine[0].BookedBy.UserID)

	assigned, total, err := svc.List(ctx, Filter{VisibleToUserID: maya.UserID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, erin.UserID, assigned[0].BookedBy.UserID)

	all, total, err := svc.List(ctx, Filter{SortOrder: "ASC"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "10:00", all[0].StartTime)
}

// racingRepo lets rival win the slot between the service's conflict check
// and its write, the way a concurrent writer on another instance would.
type racingRepo struct {
	Repository
	rival *Booking
}

func (r *racingRepo) Save(ctx context.Context, b *Booking) error {
	if r.rival != nil && b.ID != r.rival.ID {
		if err := r.Repository.Save(ctx, r.rival); err != nil {
			return err
		}
		r.rival = nil
		return ErrSlotTaken
	}
	return r.Repository.Save(ctx, b)
}

func TestCreateReportsSlotLostToConcurrentWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("winner is reported", func(t *testing.T) {
		inner := NewMemoryRepository()
		rival := &Booking{
			ID:        "rival",
			RoomName:  "Atlas",
			Date:      testDate,
			StartTime: "09:30",
			EndTime:   "10:30",
			Status:    StatusApproved,
			BookedBy:  omar,
		}
		svc := newServiceOn(&racingRepo{Repository: inner, rival: rival})

		_, err := svc.Create(ctx, erin, request("Atlas", "09:00", "10:00"))
		require.Equal(t, apperror.KindConflict, apperror.KindOf(err), "error: %v", err)
		d, ok := ConflictOf(err)
		require.True(t, ok)
		assert.Equal(t, "rival", d.BookingID)
		assert.Equal(t, "Omar Reyes", d.BookedBy)
		assert.Equal(t, "09:30", d.StartTime)

		stored, err := inner.FindByRoomAndDate(ctx, "Atlas", testDate, ActiveStatuses)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "rival", stored[0].ID)
	})

	t.Run("winner already gone", func(t *testing.T) {
		svc := newServiceOn(slotTakenRepo{NewMemoryRepository()})

		_, err := svc.Create(ctx, erin, request("Atlas", "09:00", "10:00"))
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		assert.ErrorIs(t, err, ErrSlotTaken)
		_, ok := ConflictOf(err)
		assert.False(t, ok)
	})
}

type slotTakenRepo struct{ Repository }

func (slotTakenRepo) Save(ctx context.Context, b *Booking) error {
	return ErrSlotTaken
}

// legacyRepo serves extra rows that the room-day query returns but that
// never went through Save, such as data imported before overlap checks.
type legacyRepo struct {
	Repository
	extra []*Booking
}

func (r legacyRepo) FindByRoomAndDate(ctx context.Context, room, date string, statuses []Status) ([]*Booking, error) {
	out, err := r.Repository.FindByRoomAndDate(ctx, room, date, statuses)
	if err != nil {
		return nil, err
	}
	for _, b := range r.extra {
		if b.RoomName == room && b.Date == date && slices.Contains(statuses, b.Status) {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func TestApproveRefusesOverlappingApprovedBooking(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRepository()
	pending := seed(t, inner, "pending", "Atlas", "09:00", "10:00", StatusPending)
	repo := legacyRepo{Repository: inner, extra: []*Booking{{
		ID:        "legacy",
		RoomName:  "Atlas",
		Date:      testDate,
		StartTime: "09:30",
		EndTime:   "10:30",
		Status:    StatusApproved,
		BookedBy:  omar,
	}}}
	rec := &recorder{}
	svc := newServiceOn(repo, rec)

	_, err := svc.Approve(ctx, pending.ID, maya, "")
	require.Equal(t, apperror.KindConflict, apperror.KindOf(err), "error: %v", err)
	d, ok := ConflictOf(err)
	require.True(t, ok)
	assert.Equal(t, "legacy", d.BookingID)
	assert.Equal(t, "Omar Reyes", d.BookedBy)
	assert.Equal(t, "09:30", d.StartTime)
	assert.Equal(t, StatusApproved, d.Status)

	got, err := inner.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ApprovedBy)
	assert.Empty(t, rec.kinds())
}

func TestCancelByStrangerIsForbiddenWhateverTheStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b := mustCreate(t, svc, erin, request("Atlas", "09:00", "10:00"))
	_, err := svc.Cancel(ctx, b.ID, erin, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, omar, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Cancel(ctx, b.ID, erin, "")
	requireTransition(t, err, StatusCancelled, "cancel")
}

// shiftingRepo reports the booking in a different room on every read.
type shiftingRepo struct {
	Repository
	reads, saves int
}

func (r *shiftingRepo) FindByID(ctx context.Context, id string) (*Booking, error) {
	b, err := r.Repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.reads++
	if r.reads%2 == 0 {
		b.RoomName = "Borealis"
	}
	return b, nil
}

func (r *shiftingRepo) Save(ctx context.Context, b *Booking) error {
	r.saves++
	return r.Repository.Save(ctx, b)
}

func TestMutationGivesUpWhenBookingKeepsMoving(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRepository()
	b := seed(t, inner, "moving", "Atlas", "09:00", "10:00", StatusPending)
	repo := &shiftingRepo{Repository: inner}
	svc := newServiceOn(repo)

	_, err := svc.Cancel(ctx, b.ID, maya, "")
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, 2*maxLockAttempts, repo.reads)
	assert.Zero(t, repo.saves)

	got, err := inner.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
