package chat

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const defaultWelcomeKey = "Welcome to {chat}, {mention}!"

func (g *Gatekeeper) handleJoin(ctx context.Context, msg *api.Message, chat *api.Chat) error {
	entry := g.logger.WithFields(log.Fields{"method": "handleJoin", "chat_id": chat.ID})

	settings, err := g.s.GetSettings(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "get settings")
	}

	addedByAdmin := false
	if msg.From != nil {
		addedByAdmin, err = g.s.IsAdmin(ctx, chat.ID, msg.From.ID)
		if err != nil {
			return errors.WithMessage(err, "check inviter")
		}
	}

	for i := range msg.NewChatMembers {
		member := &msg.NewChatMembers[i]
		if member.IsBot {
			continue
		}
		banned, err := g.store.IsBanned(ctx, chat.ID, member.ID, g.now())
		if err != nil {
			return errors.WithMessage(err, "check ban")
		}
		if banned {
			continue
		}

		silent := addedByAdmin && msg.From.ID != member.ID
		if settings.CaptchaEnabled && !silent {
			if err := g.challenge(ctx, chat, member, settings); err != nil {
				return err
			}
			continue
		}
		if settings.WelcomeEnabled {
			g.welcome(ctx, chat, member, settings)
		}
		entry.WithField("user_id", member.ID).Debug("member admitted without captcha")
	}
	return nil
}

func (g *Gatekeeper) challenge(ctx context.Context, chat *api.Chat, member *api.User, settings *db.Settings) error {
	entry := g.logger.WithFields(log.Fields{
		"method":  "challenge",
		"chat_id": chat.ID,
		"user_id": member.ID,
	})
	platform := g.s.GetPlatform()

	if err := platform.RestrictMember(ctx, chat.ID, member.ID, time.Time{}); err != nil {
		entry.WithField("error", err.Error()).Warn("cant restrict new member")
	}

	lang := g.s.GetLanguage(ctx, chat.ID, member)
	c := newChallenge()
	token := newCaptchaToken()
	timeout := settings.GetCaptchaTimeout()

	text := fmt.Sprintf(
		i18n.Get("Welcome, %s! To prove you are human, solve %d + %d within %d seconds, or you will be removed.", lang),
		bot.Mention(member), c.A, c.B, int(timeout/time.Second),
	)
	msg := htmlMessage(chat.ID, text)
	msg.ReplyMarkup = captchaKeyboard(member.ID, token, c)
	sent, err := platform.Send(ctx, msg)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant send challenge, releasing member")
		if err := platform.UnrestrictMember(ctx, chat.ID, member.ID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant unrestrict member")
		}
		return nil
	}

	now := g.now()
	pending := &db.PendingCaptcha{
		ChatID:             chat.ID,
		UserID:             member.ID,
		Token:              token,
		Answer:             c.Answer,
		ChallengeMessageID: sent.MessageID,
		JoinTime:           now,
		ExpiresAt:          now.Add(timeout),
	}
	if err := g.store.UpsertPendingCaptcha(ctx, pending); err != nil {
		return errors.WithMessage(err, "persist pending captcha")
	}
	g.arm(pending)
	observability.RecordCaptcha("issued")
	entry.Debug("challenge issued")
	return nil
}

func (g *Gatekeeper) welcome(ctx context.Context, chat *api.Chat, member *api.User, settings *db.Settings) {
	template := settings.WelcomeMessage
	if template == "" {
		template = i18n.Get(defaultWelcomeKey, g.s.GetLanguage(ctx, chat.ID, member))
	}
	sent, err := g.s.GetPlatform().Send(ctx, htmlMessage(chat.ID, FormatGreeting(template, member, chat)))
	if err != nil {
		g.logger.WithField("error", err.Error()).Warn("cant send welcome")
		return
	}
	if settings.WelcomeDeleteAfter > 0 {
		deleteLater(g.sched, g.s.GetPlatform(), g.logger, chat.ID, sent.MessageID, time.Duration(settings.WelcomeDeleteAfter)*time.Second)
	}
}
