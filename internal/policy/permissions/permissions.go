package permissions

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
)

// Denial reasons double as translation keys.
const (
	ReasonGroupOnly      = "This command can only be used in groups."
	ReasonAdminOnly      = "You need to be an admin to use this command."
	ReasonSuperAdminOnly = "Only the bot owner can use this command."
	ReasonManagerOnly    = "You need the right to add admins to use this command."
	ReasonTargetAdmin    = "This action cannot be applied to an admin."
	ReasonTargetSelf     = "This action cannot be applied to yourself."
	ReasonNoTarget       = "Reply to a message or give a user id."
)

// Decision is the result of a guard clause.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	IsSuperAdmin(userID int64) bool
}

func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && (member.CanManageChat || member.CanPromoteMembers)
}

func IsPrivilegedModerator(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if IsManager(member) {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers
}

func RequireGroup(chat *api.Chat) Decision {
	if chat == nil || !(chat.IsGroup() || chat.IsSuperGroup()) {
		return Deny(ReasonGroupOnly)
	}
	return Allow()
}

func RequireAdmin(ctx context.Context, c AdminChecker, chatID, userID int64) (Decision, error) {
	ok, err := c.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Deny(ReasonAdminOnly), nil
	}
	return Allow(), nil
}

func RequireSuperAdmin(c AdminChecker, userID int64) Decision {
	if !c.IsSuperAdmin(userID) {
		return Deny(ReasonSuperAdminOnly)
	}
	return Allow()
}

// RequireManager allows the super admin and chat members able to promote others.
func RequireManager(c AdminChecker, userID int64, member *api.ChatMember) Decision {
	if c.IsSuperAdmin(userID) || IsManager(member) {
		return Allow()
	}
	return Deny(ReasonManagerOnly)
}

// CanPunish checks that the actor is an admin and the target is neither the actor nor an admin.
func CanPunish(ctx context.Context, c AdminChecker, chatID, actorID, targetID int64) (Decision, error) {
	if targetID == 0 {
		return Deny(ReasonNoTarget), nil
	}
	d, err := RequireAdmin(ctx, c, chatID, actorID)
	if err != nil || !d.Allowed {
		return d, err
	}
	if actorID == targetID {
		return Deny(ReasonTargetSelf), nil
	}
	targetAdmin, err := c.IsAdmin(ctx, chatID, targetID)
	if err != nil {
		return Decision{}, err
	}
	if targetAdmin {
		return Deny(ReasonTargetAdmin), nil
	}
	return Allow(), nil
}
