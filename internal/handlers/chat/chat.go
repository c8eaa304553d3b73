// Package chat holds the group-facing handlers: captcha admission, the
// per-message guard and the command router.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/scheduler"
)

const (
	floodNoticeTTL   = 5 * time.Second
	nightNoticeTTL   = 10 * time.Second
	captchaNoticeTTL = 10 * time.Second
)

// Scheduler runs delayed and recurring tasks.
type Scheduler interface {
	ScheduleOnce(name string, delay time.Duration, task scheduler.Task) (func(), error)
	Every(name string, interval time.Duration, task scheduler.Task) error
}

// Kicker removes a member without recording a penalty.
type Kicker interface {
	Kick(ctx context.Context, chatID, userID int64) error
}

// deleteLater removes a message after ttl. Failures are logged only.
func deleteLater(sched Scheduler, platform bot.Platform, logger *log.Entry, chatID int64, messageID int, ttl time.Duration) {
	name := fmt.Sprintf("delete:%d:%d", chatID, messageID)
	_, err := sched.ScheduleOnce(name, ttl, func(ctx context.Context) {
		if err := platform.DeleteMessage(ctx, chatID, messageID); err != nil {
			logger.WithFields(log.Fields{
				"chat_id":    chatID,
				"message_id": messageID,
				"error":      err.Error(),
			}).Debug("cant auto-delete message")
		}
	})
	if err != nil {
		logger.WithField("error", err.Error()).Warn("cant schedule message deletion")
	}
}

func htmlMessage(chatID int64, text string) api.MessageConfig {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.LinkPreviewOptions.IsDisabled = true
	return msg
}

// FormatGreeting fills welcome and goodbye placeholders.
func FormatGreeting(template string, user *api.User, chat *api.Chat) string {
	username := bot.EscapeHTML(user.FirstName)
	if user.UserName != "" {
		username = "@" + user.UserName
	}
	title := "this chat"
	if chat != nil && chat.Title != "" {
		title = chat.Title
	}
	return strings.NewReplacer(
		"{first}", bot.EscapeHTML(user.FirstName),
		"{last}", bot.EscapeHTML(user.LastName),
		"{fullname}", bot.EscapeHTML(bot.GetFullName(user)),
		"{username}", username,
		"{mention}", bot.Mention(user),
		"{id}", fmt.Sprint(user.ID),
		"{chat}", bot.EscapeHTML(title),
		"{chatname}", bot.EscapeHTML(title),
	).Replace(template)
}
