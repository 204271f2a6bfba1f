// Package authz はロールから権限集合を導出する。
// 純粋関数のみで構成され、I/Oを行わない。権限はトークンには含めず、
// 判定時点でロールから決定的に導出するため、権限の意味付けを
// トークンの再発行なしに変更できる。
package authz

import "github.com/hitoshi/eventgate/internal/model"

// Permission は名前付きの実行権限を表す。
type Permission string

const (
	PermCreateEvent         Permission = "create-event"
	PermManageEvent         Permission = "manage-event"
	PermDeleteEvent         Permission = "delete-event"
	PermManageSessions      Permission = "manage-sessions"
	PermManageSpeakers      Permission = "manage-speakers"
	PermApproveRegistration Permission = "approve-registration"
	PermCheckInAttendees    Permission = "check-in-attendees"
	PermViewAnalytics       Permission = "view-analytics"
	PermManageUsers         Permission = "manage-users"
	PermSubmitTalk          Permission = "submit-talk"
	PermViewOwnSessions     Permission = "view-own-sessions"
	PermRegisterForEvent    Permission = "register-for-event"
	PermViewOwnSchedule     Permission = "view-own-schedule"
)

// PermissionSet は権限の集合。判定は単純な集合所属テストであり、
// 階層・継承・ワイルドカードは持たない。
type PermissionSet map[Permission]struct{}

// Has は権限が集合に含まれるかを返す。
func (ps PermissionSet) Has(p Permission) bool {
	_, ok := ps[p]
	return ok
}

// newPermissionSet は権限のリストから集合を構築する。
func newPermissionSet(perms ...Permission) PermissionSet {
	ps := make(PermissionSet, len(perms))
	for _, p := range perms {
		ps[p] = struct{}{}
	}
	return ps
}

// rolePermissions はロールごとの権限集合。
// パッケージ初期化時に1回だけ構築するイミュータブルなテーブル。
var rolePermissions = map[model.Role]PermissionSet{
	model.RoleAdmin: newPermissionSet(
		PermCreateEvent,
		PermManageEvent,
		PermDeleteEvent,
		PermManageSessions,
		PermManageSpeakers,
		PermApproveRegistration,
		PermCheckInAttendees,
		PermViewAnalytics,
		PermManageUsers,
		PermSubmitTalk,
		PermViewOwnSessions,
		PermRegisterForEvent,
		PermViewOwnSchedule,
	),
	model.RoleOrganizer: newPermissionSet(
		PermCreateEvent,
		PermManageEvent,
		PermManageSessions,
		PermManageSpeakers,
		PermApproveRegistration,
		PermCheckInAttendees,
		PermViewAnalytics,
		PermRegisterForEvent,
		PermViewOwnSchedule,
	),
	model.RoleSpeaker: newPermissionSet(
		PermSubmitTalk,
		PermViewOwnSessions,
		PermRegisterForEvent,
		PermViewOwnSchedule,
	),
	model.RoleParticipant: newPermissionSet(
		PermRegisterForEvent,
		PermViewOwnSchedule,
	),
}

// PermissionsFor はロールに対応する権限集合を返す。
// 未知のロールには空集合を返す（最小権限）。
func PermissionsFor(role model.Role) PermissionSet {
	if ps, ok := rolePermissions[role]; ok {
		return ps
	}
	return PermissionSet{}
}

// actionPermissions はアクション名から必要権限へのマッピング。
// どのアクションにどの権限が必要かは、ロール→権限テーブルとは
// 独立に変更できるように分離している。
var actionPermissions = map[string]Permission{
	"event.create":         PermCreateEvent,
	"event.update":         PermManageEvent,
	"event.delete":         PermDeleteEvent,
	"session.manage":       PermManageSessions,
	"speaker.manage":       PermManageSpeakers,
	"registration.approve": PermApproveRegistration,
	"attendee.check-in":    PermCheckInAttendees,
	"analytics.view":       PermViewAnalytics,
	"user.manage":          PermManageUsers,
	"talk.submit":          PermSubmitTalk,
	"session.view-own":     PermViewOwnSessions,
	"event.register":       PermRegisterForEvent,
	"schedule.view-own":    PermViewOwnSchedule,
}

// RequiredPermission はアクション名に必要な権限を返す。
// 未知のアクションはfalseを返し、呼び出し側は拒否する（フェイルクローズ）。
func RequiredPermission(action string) (Permission, bool) {
	p, ok := actionPermissions[action]
	return p, ok
}

// Allowed はロールがアクションを実行できるかを判定する。
func Allowed(role model.Role, action string) bool {
	p, ok := RequiredPermission(action)
	if !ok {
		return false
	}
	return PermissionsFor(role).Has(p)
}
