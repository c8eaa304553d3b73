package permissions

import (
	"context"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
)

type fakeChecker struct {
	admins map[int64]bool
	super  int64
}

func (f fakeChecker) IsAdmin(_ context.Context, _ int64, userID int64) (bool, error) {
	return f.admins[userID] || userID == f.super, nil
}

func (f fakeChecker) IsSuperAdmin(userID int64) bool {
	return userID == f.super
}

func TestCanPunish(t *testing.T) {
	t.Parallel()

	c := fakeChecker{admins: map[int64]bool{2: true, 3: true}, super: 1}
	tests := []struct {
		name   string
		actor  int64
		target int64
		want   Decision
	}{
		{name: "admin on member", actor: 2, target: 10, want: Allow()},
		{name: "super admin on member", actor: 1, target: 10, want: Allow()},
		{name: "member", actor: 10, target: 11, want: Deny(ReasonAdminOnly)},
		{name: "admin on admin", actor: 2, target: 3, want: Deny(ReasonTargetAdmin)},
		{name: "self", actor: 2, target: 2, want: Deny(ReasonTargetSelf)},
		{name: "no target", actor: 2, target: 0, want: Deny(ReasonNoTarget)},
	}
	for _, tt := range tests {
		got, err := CanPunish(context.Background(), c, -1, tt.actor, tt.target)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestRequireGroupAndManager(t *testing.T) {
	t.Parallel()

	if RequireGroup(&api.Chat{Type: "private"}).Allowed {
		t.Fatal("private chat must be denied")
	}
	if !RequireGroup(&api.Chat{Type: "supergroup"}).Allowed {
		t.Fatal("supergroup must be allowed")
	}

	c := fakeChecker{super: 1}
	if !RequireManager(c, 1, nil).Allowed {
		t.Fatal("super admin must be allowed")
	}
	creator := &api.ChatMember{Status: "creator"}
	if !RequireManager(c, 5, creator).Allowed {
		t.Fatal("creator must be allowed")
	}
	restricted := &api.ChatMember{Status: "administrator", CanRestrictMembers: true}
	if RequireManager(c, 6, restricted).Allowed {
		t.Fatal("moderator without promote rights must be denied")
	}
	if !IsPrivilegedModerator(restricted) {
		t.Fatal("restricting admin is a privileged moderator")
	}
}
