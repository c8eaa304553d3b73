package chat

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
)

// arm schedules the deadline of a pending captcha, replacing an older handle for the same member.
func (g *Gatekeeper) arm(p *db.PendingCaptcha) {
	key := captchaKey{chatID: p.ChatID, userID: p.UserID}
	chatID, userID, token := p.ChatID, p.UserID, p.Token

	delay := p.ExpiresAt.Sub(g.now())
	cancel, err := g.sched.ScheduleOnce(fmt.Sprintf("captcha:%d:%d", chatID, userID), delay, func(ctx context.Context) {
		g.expire(ctx, chatID, userID, token)
	})
	if err != nil {
		g.logger.WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err.Error(),
		}).Error("cant arm captcha deadline, sweep will expire it")
		return
	}

	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	if old, ok := g.timers[key]; ok {
		old.cancel()
	}
	g.timers[key] = captchaTimer{token: token, cancel: cancel}
}

// disarm drops the deadline handle of a resolved captcha.
func (g *Gatekeeper) disarm(chatID, userID int64, token string) {
	key := captchaKey{chatID: chatID, userID: userID}
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	if t, ok := g.timers[key]; ok && t.token == token {
		t.cancel()
		delete(g.timers, key)
	}
}

// expire kicks the member if the pending row is still there; otherwise it is a no-op.
func (g *Gatekeeper) expire(ctx context.Context, chatID, userID int64, token string) {
	entry := g.logger.WithFields(log.Fields{
		"method":  "expire",
		"chat_id": chatID,
		"user_id": userID,
	})

	pending, err := g.store.TakePendingCaptcha(ctx, chatID, userID, token)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant take pending captcha")
		return
	}
	g.disarm(chatID, userID, token)
	if pending == nil {
		entry.Debug("captcha already resolved")
		return
	}

	platform := g.s.GetPlatform()
	if err := g.kicker.Kick(ctx, chatID, userID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant kick unverified member")
	}
	if err := platform.DeleteMessage(ctx, chatID, pending.ChallengeMessageID); err != nil {
		entry.WithField("error", err.Error()).Debug("cant delete challenge")
	}

	lang := g.s.GetLanguage(ctx, chatID, nil)
	sent, err := platform.Send(ctx, htmlMessage(chatID, i18n.Get("User removed for not solving the captcha in time.", lang)))
	if err != nil {
		entry.WithField("error", err.Error()).Debug("cant send expiry notice")
	} else {
		deleteLater(g.sched, platform, g.logger, chatID, sent.MessageID, captchaNoticeTTL)
	}
	observability.RecordCaptcha("expired")
	entry.Info("unverified member removed")
}

func (g *Gatekeeper) sweep(ctx context.Context) {
	expired, err := g.store.ListExpiredCaptchas(ctx, g.now())
	if err != nil {
		g.logger.WithField("error", err.Error()).Error("cant list expired captchas")
		return
	}
	for _, p := range expired {
		if ctx.Err() != nil {
			return
		}
		g.expire(ctx, p.ChatID, p.UserID, p.Token)
	}
}
