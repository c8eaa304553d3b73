package admin

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const greetingKey = "Hi! I am ready to moderate %s. Make me an admin with the rights to delete messages and restrict members. Send /help for the list of commands."

// handleMyChatMember reacts to the bot itself being added to or removed from a chat.
func (a *Admin) handleMyChatMember(ctx context.Context, update *api.ChatMemberUpdated) error {
	entry := a.getLogEntry().WithFields(log.Fields{
		"method":  "handleMyChatMember",
		"chat_id": update.Chat.ID,
		"status":  update.NewChatMember.Status,
	})
	if !(update.Chat.IsGroup() || update.Chat.IsSuperGroup()) {
		return nil
	}
	a.s.InvalidateAdmins(update.Chat.ID)

	wasPresent := isPresentStatus(update.OldChatMember.Status)
	isPresent := isPresentStatus(update.NewChatMember.Status)
	switch {
	case isPresent && !wasPresent:
		settings, err := a.settings(ctx, update.Chat.ID)
		if err != nil {
			return err
		}
		if settings.Title != update.Chat.Title {
			settings.Title = update.Chat.Title
			if err := a.s.SetSettings(ctx, settings); err != nil {
				return errors.WithMessage(err, "save settings")
			}
		}
		lang := a.s.GetLanguage(ctx, update.Chat.ID, &update.From)
		msg := api.NewMessage(update.Chat.ID, fmt.Sprintf(i18n.Get(greetingKey, lang), bot.EscapeHTML(update.Chat.Title)))
		msg.ParseMode = api.ModeHTML
		if _, err := a.s.GetPlatform().Send(ctx, msg); err != nil {
			entry.WithField("error", err.Error()).Warn("cant greet chat")
		}
		entry.WithField("added_by", update.From.ID).Info("bot added to chat")

	case !isPresent && wasPresent:
		entry.WithField("removed_by", update.From.ID).Info("bot removed from chat")

	case isAdminStatus(update.NewChatMember.Status) != isAdminStatus(update.OldChatMember.Status):
		entry.WithField("admin", isAdminStatus(update.NewChatMember.Status)).Info("bot rights changed")
	}
	return nil
}

// handleChatMember keeps bot admins in line with chat administrators.
func (a *Admin) handleChatMember(ctx context.Context, update *api.ChatMemberUpdated) error {
	if update.NewChatMember.User == nil {
		return nil
	}
	userID := update.NewChatMember.User.ID
	entry := a.getLogEntry().WithFields(log.Fields{
		"method":  "handleChatMember",
		"chat_id": update.Chat.ID,
		"user_id": userID,
	})

	was := isAdminStatus(update.OldChatMember.Status)
	is := isAdminStatus(update.NewChatMember.Status)
	if was == is {
		return nil
	}
	a.s.InvalidateAdmins(update.Chat.ID)
	if is {
		entry.Debug("member promoted")
		return nil
	}

	removed, err := a.store.RemoveAdmin(ctx, update.Chat.ID, userID)
	if err != nil {
		return errors.WithMessage(err, "remove admin")
	}
	entry.WithField("removed", removed).Info("member demoted")
	return nil
}
