package chat

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
)

func (g *Gatekeeper) handleAnswer(ctx context.Context, cq *api.CallbackQuery) error {
	platform := g.s.GetPlatform()
	answer, ok := parseCaptchaCallback(cq.Data)
	if !ok || cq.Message == nil || cq.From == nil {
		return platform.AnswerCallback(ctx, cq.ID, "", false)
	}
	chat := cq.Message.Chat
	lang := g.s.GetLanguage(ctx, chat.ID, cq.From)
	entry := g.logger.WithFields(log.Fields{
		"method":  "handleAnswer",
		"chat_id": chat.ID,
		"user_id": answer.UserID,
	})

	if cq.From.ID != answer.UserID {
		entry.WithField("presser", cq.From.ID).Info("captcha pressed by another user")
		return platform.AnswerCallback(ctx, cq.ID, i18n.Get("This captcha is not for you!", lang), true)
	}

	pending, err := g.store.TakePendingCaptcha(ctx, chat.ID, answer.UserID, answer.Token)
	if err != nil {
		return errors.WithMessage(err, "take pending captcha")
	}
	if pending == nil {
		entry.Debug("captcha already resolved")
		return platform.AnswerCallback(ctx, cq.ID, i18n.Get("This captcha has expired.", lang), true)
	}
	g.disarm(chat.ID, answer.UserID, answer.Token)

	if answer.Choice == pending.Answer {
		if err := platform.UnrestrictMember(ctx, chat.ID, answer.UserID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant unrestrict verified member")
		}
		text := fmt.Sprintf(i18n.Get("Captcha solved! Welcome to the chat, %s!", lang), bot.Mention(cq.From))
		if err := platform.EditMessageText(ctx, chat.ID, pending.ChallengeMessageID, text); err != nil {
			entry.WithField("error", err.Error()).Debug("cant edit challenge")
		}
		_ = platform.AnswerCallback(ctx, cq.ID, i18n.Get("Welcome!", lang), false)
		observability.RecordCaptcha("passed")

		settings, err := g.s.GetSettings(ctx, chat.ID)
		if err != nil {
			return errors.WithMessage(err, "get settings")
		}
		if settings.WelcomeEnabled {
			g.welcome(ctx, &chat, cq.From, settings)
		}
		return nil
	}

	if err := g.kicker.Kick(ctx, chat.ID, answer.UserID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant kick failed member")
	}
	text := fmt.Sprintf(i18n.Get("Wrong answer! %s has been removed.", lang), bot.Mention(cq.From))
	if err := platform.EditMessageText(ctx, chat.ID, pending.ChallengeMessageID, text); err != nil {
		entry.WithField("error", err.Error()).Debug("cant edit challenge")
	}
	_ = platform.AnswerCallback(ctx, cq.ID, "", false)
	observability.RecordCaptcha("failed")
	return nil
}
