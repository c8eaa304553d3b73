// Package admin keeps chat state in sync with membership events: the bot
// joining or leaving, admin changes, joins under attack and goodbyes.
package admin

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/chat"
)

const (
	statusCreator       = "creator"
	statusAdministrator = "administrator"
	statusLeft          = "left"
	statusKicked        = "kicked"
)

// SpammerChecker tells whether a user is on a public known-spammer list.
type SpammerChecker interface {
	CheckBan(ctx context.Context, userID int64) (bool, error)
}

type Admin struct {
	s       bot.Service
	store   db.Client
	kicker  chat.Kicker
	spammer SpammerChecker
	now     func() time.Time
}

// NewAdmin builds the membership handler. A nil spammer disables known-spammer checks.
func NewAdmin(s bot.Service, kicker chat.Kicker, spammer SpammerChecker) *Admin {
	a := &Admin{
		s:       s,
		store:   s.GetDB(),
		kicker:  kicker,
		spammer: spammer,
		now:     time.Now,
	}
	a.getLogEntry().WithField("method", "NewAdmin").Debug("created new admin handler")
	return a
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, c *api.Chat, user *api.User) (proceed bool, err error) {
	entry := a.getLogEntry().WithField("method", "Handle")

	if u == nil {
		return true, nil
	}

	switch {
	case u.MyChatMember != nil:
		if err := a.handleMyChatMember(ctx, u.MyChatMember); err != nil {
			entry.WithField("error", err.Error()).Error("failed to handle my_chat_member update")
			return false, err
		}
		return false, nil

	case u.ChatMember != nil:
		if err := a.handleChatMember(ctx, u.ChatMember); err != nil {
			entry.WithField("error", err.Error()).Error("failed to handle chat_member update")
			return false, err
		}
		return false, nil

	case u.Message != nil && c != nil && (c.IsGroup() || c.IsSuperGroup()):
		if len(u.Message.NewChatMembers) > 0 {
			return a.handleJoin(ctx, u.Message, c)
		}
		if u.Message.LeftChatMember != nil {
			return false, a.handleLeft(ctx, u.Message, c)
		}
	}
	return true, nil
}

func isAdminStatus(status string) bool {
	return status == statusCreator || status == statusAdministrator
}

func isPresentStatus(status string) bool {
	return status != statusLeft && status != statusKicked
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("object", "Admin")
}

func (a *Admin) settings(ctx context.Context, chatID int64) (*db.Settings, error) {
	settings, err := a.s.GetSettings(ctx, chatID)
	if err != nil {
		return nil, errors.WithMessage(err, "get settings")
	}
	return settings, nil
}
