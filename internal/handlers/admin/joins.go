package admin

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/chat"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const (
	defaultGoodbyeKey    = "Goodbye, {first}!"
	spammerLookupTimeout = 3 * time.Second
	knownSpammerReason   = "known spammer"
)

// handleJoin enforces under-attack mode, standing bans and known-spammer
// lists on new members.
// It stops the chain only when under attack, so captcha sees everyone else.
func (a *Admin) handleJoin(ctx context.Context, msg *api.Message, c *api.Chat) (bool, error) {
	entry := a.getLogEntry().WithFields(log.Fields{"method": "handleJoin", "chat_id": c.ID})
	settings, err := a.settings(ctx, c.ID)
	if err != nil {
		return false, err
	}
	platform := a.s.GetPlatform()

	for i := range msg.NewChatMembers {
		member := &msg.NewChatMembers[i]
		if member.IsBot {
			continue
		}
		isAdmin, err := a.s.IsAdmin(ctx, c.ID, member.ID)
		if err != nil {
			return false, errors.WithMessage(err, "check joiner")
		}
		if isAdmin {
			continue
		}
		memberEntry := entry.WithField("user_id", member.ID)

		banned, err := a.store.IsBanned(ctx, c.ID, member.ID, a.now())
		if err != nil {
			return false, errors.WithMessage(err, "check ban")
		}
		if !banned && settings.AntispamEnabled && a.spammer != nil && a.isKnownSpammer(ctx, memberEntry, member.ID) {
			// a local record makes captcha and later joins see the ban
			_, err := a.store.AddRecord(ctx, &db.ModerationRecord{
				Kind:   db.RecordBan,
				ChatID: c.ID,
				UserID: member.ID,
				Reason: knownSpammerReason,
			})
			if err != nil {
				return false, errors.WithMessage(err, "record known spammer")
			}
			banned = true
		}
		switch {
		case banned:
			err := platform.BanMember(ctx, c.ID, member.ID, time.Time{})
			observability.RecordPenalty("ban", err == nil)
			if err != nil {
				memberEntry.WithField("error", err.Error()).Warn("cant ban joiner")
				continue
			}
			memberEntry.Info("banned member joined, ban applied")
		case settings.UnderAttack:
			err := a.kicker.Kick(ctx, c.ID, member.ID)
			observability.RecordPenalty("kick", err == nil)
			if err != nil {
				memberEntry.WithField("error", err.Error()).Warn("cant kick joiner under attack")
				continue
			}
			memberEntry.Info("joiner kicked under attack")
		}
	}

	if !settings.UnderAttack {
		return true, nil
	}
	if err := platform.DeleteMessage(ctx, c.ID, msg.MessageID); err != nil {
		entry.WithField("error", err.Error()).Debug("cant delete join message")
	}
	return false, nil
}

func (a *Admin) isKnownSpammer(ctx context.Context, entry *log.Entry, userID int64) bool {
	lookupCtx, cancel := context.WithTimeout(ctx, spammerLookupTimeout)
	defer cancel()
	known, err := a.spammer.CheckBan(lookupCtx, userID)
	if err != nil {
		entry.WithField("error", err.Error()).Debug("cant check known spammer")
		return false
	}
	if known {
		entry.Info("known spammer joined")
	}
	return known
}

// handleLeft says goodbye when the chat wants it.
func (a *Admin) handleLeft(ctx context.Context, msg *api.Message, c *api.Chat) error {
	member := msg.LeftChatMember
	if member.IsBot {
		return nil
	}
	settings, err := a.settings(ctx, c.ID)
	if err != nil {
		return err
	}
	if !settings.GoodbyeEnabled {
		return nil
	}
	template := settings.GoodbyeMessage
	if template == "" {
		template = i18n.Get(defaultGoodbyeKey, a.s.GetLanguage(ctx, c.ID, member))
	}
	reply := api.NewMessage(c.ID, chat.FormatGreeting(template, member, c))
	reply.ParseMode = api.ModeHTML
	reply.LinkPreviewOptions.IsDisabled = true
	if _, err := a.s.GetPlatform().Send(ctx, reply); err != nil {
		a.getLogEntry().WithField("error", err.Error()).Warn("cant send goodbye")
	}
	return nil
}
