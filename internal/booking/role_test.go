package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
)

func TestCapabilities(t *testing.T) {
	tests := []struct {
		role     auth.Role
		elevated bool
	}{
		{auth.RoleEmployee, false},
		{auth.RoleManager, true},
		{auth.RoleHR, true},
		{auth.RoleAdmin, true},
		{auth.Role("Superuser"), false},
		{auth.Role(" ADMIN "), true},
		{auth.Role(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			a := Actor{UserID: "u", Role: tt.role}
			assert.Equal(t, tt.elevated, a.IsElevated())
			assert.Equal(t, tt.elevated, CanDecide(tt.role))
			assert.Equal(t, tt.elevated, a.can(capSelfApprove))
			assert.Equal(t, tt.elevated, a.can(capSetStatus))
		})
	}
}

func TestCanManageAndView(t *testing.T) {
	b := &Booking{BookedBy: erin, AssignedManager: &ManagerRef{UserID: "u-assigned"}}

	assert.True(t, erin.canManage(b))
	assert.False(t, omar.canManage(b))
	assert.True(t, maya.canManage(b))

	assert.True(t, CanView(b, erin))
	assert.True(t, CanView(b, hana))
	assert.False(t, CanView(b, omar))
	assert.True(t, CanView(b, Actor{UserID: "u-assigned", Role: auth.RoleEmployee}))

	// An empty identity never owns anything.
	anon := &Booking{}
	assert.False(t, Actor{}.owns(anon))
}
