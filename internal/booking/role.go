package booking

import "github.com/nekogravitycat/room-booking-backend/internal/auth"

type capability uint8

const (
	// capDecide allows approving and rejecting pending bookings.
	capDecide capability = 1 << iota
	// capSelfApprove makes the role's own bookings start out approved.
	capSelfApprove
	// capManageAny allows editing and cancelling bookings requested by others.
	capManageAny
	// capSetStatus allows changing status through a field update.
	capSetStatus
	// capEditApproved allows editing bookings that are already approved.
	capEditApproved
)

const elevatedCapabilities = capDecide | capSelfApprove | capManageAny | capSetStatus | capEditApproved

// roleCapabilities is the single place role names turn into permissions.
var roleCapabilities = map[auth.Role]capability{
	auth.RoleEmployee: 0,
	auth.RoleManager:  elevatedCapabilities,
	auth.RoleHR:       elevatedCapabilities,
	auth.RoleAdmin:    elevatedCapabilities,
}

func roleCan(r auth.Role, c capability) bool {
	return roleCapabilities[auth.ParseRole(string(r))]&c == c
}

func (a Actor) can(c capability) bool {
	return roleCan(a.Role, c)
}

// CanDecide reports whether users holding r may approve or reject bookings
// and so be assigned as a reviewing manager.
func CanDecide(r auth.Role) bool {
	return roleCan(r, capDecide)
}

// IsElevated reports whether the actor may approve or reject bookings.
func (a Actor) IsElevated() bool {
	return a.can(capDecide)
}

func (a Actor) owns(b *Booking) bool {
	return a.UserID != "" && a.UserID == b.BookedBy.UserID
}

// canManage reports whether the actor may edit or cancel b.
func (a Actor) canManage(b *Booking) bool {
	return a.owns(b) || a.can(capManageAny)
}

// CanView reports whether the actor may read b: its requester, the manager
// asked to review it, or any elevated role.
func CanView(b *Booking, a Actor) bool {
	if a.owns(b) || a.IsElevated() {
		return true
	}
	return b.AssignedManager != nil && b.AssignedManager.UserID == a.UserID
}

// mayEnter reports whether the actor may move b into target.
func (a Actor) mayEnter(b *Booking, target Status) bool {
	switch target {
	case StatusApproved, StatusRejected:
		return a.can(capDecide)
	case StatusCancelled:
		return a.canManage(b)
	}
	return false
}
