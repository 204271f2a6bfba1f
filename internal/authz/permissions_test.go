package authz

import (
	"testing"

	"github.com/hitoshi/eventgate/internal/model"
)

// TestPermissionsFor_RoleTable はロールごとの権限集合を検証する。
func TestPermissionsFor_RoleTable(t *testing.T) {
	tests := []struct {
		role    model.Role
		has     []Permission
		hasNot  []Permission
	}{
		{
			role:   model.RoleAdmin,
			has:    []Permission{PermCreateEvent, PermDeleteEvent, PermManageUsers, PermSubmitTalk, PermRegisterForEvent},
			hasNot: nil,
		},
		{
			role:   model.RoleOrganizer,
			has:    []Permission{PermCreateEvent, PermManageEvent, PermApproveRegistration, PermViewAnalytics},
			hasNot: []Permission{PermDeleteEvent, PermManageUsers, PermSubmitTalk},
		},
		{
			role:   model.RoleSpeaker,
			has:    []Permission{PermSubmitTalk, PermViewOwnSessions, PermRegisterForEvent},
			hasNot: []Permission{PermCreateEvent, PermManageUsers, PermCheckInAttendees},
		},
		{
			role:   model.RoleParticipant,
			has:    []Permission{PermRegisterForEvent, PermViewOwnSchedule},
			hasNot: []Permission{PermCreateEvent, PermSubmitTalk, PermManageUsers, PermViewAnalytics},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			ps := PermissionsFor(tt.role)
			for _, p := range tt.has {
				if !ps.Has(p) {
					t.Errorf("%s should have %s", tt.role, p)
				}
			}
			for _, p := range tt.hasNot {
				if ps.Has(p) {
					t.Errorf("%s should not have %s", tt.role, p)
				}
			}
		})
	}
}

// TestPermissionsFor_UnknownRole は未知のロールに空集合が返ることを検証する。
func TestPermissionsFor_UnknownRole(t *testing.T) {
	ps := PermissionsFor(model.Role("superuser"))
	if len(ps) != 0 {
		t.Errorf("unknown role should yield an empty permission set, got %d permissions", len(ps))
	}
}

// TestAllowed はアクション名からの認可判定を検証する。
func TestAllowed(t *testing.T) {
	tests := []struct {
		role   model.Role
		action string
		want   bool
	}{
		{model.RoleAdmin, "event.delete", true},
		{model.RoleAdmin, "user.manage", true},
		{model.RoleOrganizer, "event.create", true},
		{model.RoleOrganizer, "event.delete", false},
		{model.RoleSpeaker, "talk.submit", true},
		{model.RoleSpeaker, "attendee.check-in", false},
		{model.RoleParticipant, "event.register", true},
		{model.RoleParticipant, "event.create", false},
		// 未知のアクションはフェイルクローズ
		{model.RoleAdmin, "unknown.action", false},
		{model.RoleParticipant, "", false},
	}

	for _, tt := range tests {
		if got := Allowed(tt.role, tt.action); got != tt.want {
			t.Errorf("Allowed(%s, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

// TestRequiredPermission は未知のアクションがfalseを返すことを検証する。
func TestRequiredPermission_UnknownAction(t *testing.T) {
	if _, ok := RequiredPermission("no.such.action"); ok {
		t.Error("unknown action should not resolve to a permission")
	}
	p, ok := RequiredPermission("user.manage")
	if !ok || p != PermManageUsers {
		t.Errorf("RequiredPermission(user.manage) = %v, %v", p, ok)
	}
}
