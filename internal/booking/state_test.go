package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
)

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled}
	allowed := map[Status][]Status{
		StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
		StatusApproved: {StatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)

	_, err = ParseStatus("confirmed")
	assert.Error(t, err)
}

func TestTransitionChecksLegalityBeforePermission(t *testing.T) {
	now := testNow
	b := &Booking{Status: StatusCancelled, BookedBy: erin}

	// Even the requester gets an invalid transition, not a permission error.
	err := transition(b, StatusApproved, erin, "", now)
	requireTransition(t, err, StatusCancelled, "approve")
	assert.Equal(t, StatusCancelled, b.Status)
}

func TestTransitionSideEffects(t *testing.T) {
	now := testNow

	t.Run("reject records decider and reason", func(t *testing.T) {
		b := &Booking{Status: StatusPending, BookedBy: erin}
		require.NoError(t, transition(b, StatusRejected, maya, "no projector", now))
		assert.Equal(t, StatusRejected, b.Status)
		assert.Equal(t, "no projector", b.RejectionReason)
		require.NotNil(t, b.ApprovedBy)
		assert.Equal(t, maya.UserID, b.ApprovedBy.UserID)
		require.NotNil(t, b.ApprovedAt)
		assert.Equal(t, now, *b.ApprovedAt)
		assert.Equal(t, now, b.UpdatedAt)
	})

	t.Run("cancel keeps approval attributes", func(t *testing.T) {
		approvedAt := now.Add(-time.Hour)
		b := &Booking{Status: StatusApproved, BookedBy: erin, ApprovedBy: &maya, ApprovedAt: &approvedAt}
		require.NoError(t, transition(b, StatusCancelled, erin, "", now))
		assert.Equal(t, StatusCancelled, b.Status)
		assert.Empty(t, b.RejectionReason)
		assert.Equal(t, approvedAt, *b.ApprovedAt)
	})

	t.Run("employees cannot decide", func(t *testing.T) {
		b := &Booking{Status: StatusPending, BookedBy: erin}
		assert.ErrorIs(t, transition(b, StatusApproved, erin, "", now), ErrPermissionDenied)
		assert.Equal(t, StatusPending, b.Status)
	})
}

func TestInitialize(t *testing.T) {
	b := &Booking{}
	initialize(b, erin, testNow)
	assert.Equal(t, StatusPending, b.Status)
	assert.Nil(t, b.ApprovedBy)

	b = &Booking{}
	initialize(b, Actor{UserID: "x", Role: auth.RoleAdmin}, testNow)
	assert.Equal(t, StatusApproved, b.Status)
	require.NotNil(t, b.ApprovedAt)
	assert.Equal(t, testNow, *b.ApprovedAt)
}

func TestDerive(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	b := &Booking{Status: StatusApproved, Date: "2025-03-10", StartTime: "10:00", EndTime: "11:00"}

	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, loc) }

	tests := []struct {
		name string
		now  time.Time
		want DisplayStatus
	}{
		{"before start", at(9, 59), DisplayUpcoming},
		{"at start", at(10, 0), DisplayInProgress},
		{"just before end", at(10, 59), DisplayInProgress},
		{"at end", at(11, 0), DisplayCompleted},
		{"next day", at(11, 0).Add(24 * time.Hour), DisplayCompleted},
		// 08:30 UTC is 10:30 in the booking's zone.
		{"instant in another zone", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC), DisplayInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(b, tt.now, loc))
		})
	}

	for _, s := range []Status{StatusPending, StatusRejected, StatusCancelled} {
		other := *b
		other.Status = s
		assert.Equal(t, DisplayStatus(s), Derive(&other, at(10, 30), loc))
	}
}
