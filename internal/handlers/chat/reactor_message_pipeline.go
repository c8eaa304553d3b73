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
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
	"github.com/iamwavecut/ngguard/internal/timegate"
)

const floodReason = "Flood"

// handleMessage runs the gates in order: mute, silence, night, slow, flood, filters.
// The first gate that removes the message ends processing.
func (r *Reactor) handleMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, settings *db.Settings) (*MessageProcessingResult, error) {
	entry := r.getLogEntry().WithFields(log.Fields{
		"method":  "handleMessage",
		"chat_id": chat.ID,
		"user_id": user.ID,
	})
	now := r.now()

	result := &MessageProcessingResult{Stage: StageInit}
	r.storeLastResult(chat.ID, msg.MessageID, result)

	result.Stage = StageMute
	muted, err := r.store.IsMuted(ctx, chat.ID, user.ID, now)
	if err != nil {
		return nil, errors.WithMessage(err, "check mute")
	}
	if muted {
		result.Deleted = r.deleteMessage(ctx, entry, chat.ID, msg.MessageID)
		return result, nil
	}

	isAdmin, err := r.s.IsAdmin(ctx, chat.ID, user.ID)
	if err != nil {
		return nil, errors.WithMessage(err, "check admin")
	}
	if isAdmin {
		result.Skipped = true
		result.SkipReason = "Sender is an admin"
		return result, nil
	}

	result.Stage = StageSilence
	if settings.Silenced {
		result.Deleted = r.deleteMessage(ctx, entry, chat.ID, msg.MessageID)
		observability.RecordGate("silence")
		return result, nil
	}

	result.Stage = StageNight
	if settings.NightModeEnabled {
		blocked, err := r.nightGate(ctx, msg, chat, user, settings, now)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("invalid night mode window")
		}
		if blocked {
			result.Deleted = r.deleteMessage(ctx, entry, chat.ID, msg.MessageID)
			observability.RecordGate("night")
			return result, nil
		}
	}

	result.Stage = StageSlow
	if settings.SlowModeEnabled && !r.slow.Allow(chat.ID, user.ID, settings.GetSlowModeDelay(), now) {
		result.Deleted = r.deleteMessage(ctx, entry, chat.ID, msg.MessageID)
		observability.RecordGate("slow")
		return result, nil
	}

	result.Stage = StageFlood
	if r.flood.RecordAndCheck(chat.ID, user.ID, now) {
		observability.RecordFlood()
		policy := r.flood.Policy(chat.ID)
		out, err := r.penalties.Apply(ctx, moderation.Penalty{
			ChatID:    chat.ID,
			UserID:    user.ID,
			MessageID: msg.MessageID,
			Action:    policy.Action,
			Duration:  policy.MuteDuration,
			Reason:    floodReason,
		})
		if err != nil {
			return nil, errors.WithMessage(err, "apply flood penalty")
		}
		r.flood.Reset(chat.ID, user.ID)
		result.Outcome = out
		result.Deleted = out.MessageDeleted
		r.announceOutcome(ctx, chat, user, out, floodNoticeTTL)
		entry.WithField("action", out.Action).Info("flood detected")
		return result, nil
	}

	result.Stage = StageFilters
	verdict, err := r.pipeline.Evaluate(ctx, moderation.Payload{
		ChatID:    chat.ID,
		SenderID:  user.ID,
		MessageID: msg.MessageID,
		Text:      bot.MessageText(msg),
		Media:     bot.ClassifyMedia(msg),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "evaluate filters")
	}
	if verdict == nil {
		result.Skipped = true
		result.SkipReason = "No filter matched"
		return result, nil
	}
	result.Verdict = verdict

	result.Stage = StagePenalty
	out, err := r.penalties.Apply(ctx, moderation.Penalty{
		ChatID:    chat.ID,
		UserID:    user.ID,
		MessageID: msg.MessageID,
		Action:    verdict.Action,
		Reason:    fmt.Sprintf("%s: %s", verdict.Filter, verdict.Rule),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "apply filter penalty")
	}
	result.Outcome = out
	result.Deleted = out.MessageDeleted
	r.announceOutcome(ctx, chat, user, out, 0)
	entry.WithFields(log.Fields{
		"filter": verdict.Filter,
		"rule":   verdict.Rule,
		"action": out.Action,
	}).Info("filter matched")
	return result, nil
}

// nightGate reports whether the message falls into the chat's quiet hours and
// posts one notice per member and night.
func (r *Reactor) nightGate(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, settings *db.Settings, now time.Time) (bool, error) {
	start, err := timegate.ParseClock(settings.NightModeStart)
	if err != nil {
		return false, err
	}
	end, err := timegate.ParseClock(settings.NightModeEnd)
	if err != nil {
		return false, err
	}
	session, in := timegate.SessionStart(start, end, now.In(settings.GetLocation()))
	if !in {
		return false, nil
	}
	if r.nights.ShouldWarn(chat.ID, user.ID, session) {
		lang := r.s.GetLanguage(ctx, chat.ID, user)
		text := fmt.Sprintf(
			i18n.Get("%s, night mode is on. Messages are not allowed from %s to %s.", lang),
			bot.Mention(user), start, end,
		)
		r.sendTemporary(ctx, htmlMessage(chat.ID, text), nightNoticeTTL)
	}
	return true, nil
}

func (r *Reactor) deleteMessage(ctx context.Context, entry *log.Entry, chatID int64, messageID int) bool {
	if err := r.s.GetPlatform().DeleteMessage(ctx, chatID, messageID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant delete message")
		return false
	}
	return true
}

// sendTemporary sends a message and schedules its removal when ttl is positive.
func (r *Reactor) sendTemporary(ctx context.Context, msg api.MessageConfig, ttl time.Duration) {
	platform := r.s.GetPlatform()
	sent, err := platform.Send(ctx, msg)
	if err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant send notice")
		return
	}
	if ttl > 0 {
		deleteLater(r.sched, platform, r.getLogEntry(), msg.ChatID, sent.MessageID, ttl)
	}
}

// announceOutcome tells the chat what happened to a member. Plain deletions are silent.
func (r *Reactor) announceOutcome(ctx context.Context, chat *api.Chat, target *api.User, out *moderation.Outcome, ttl time.Duration) {
	text := r.outcomeText(ctx, chat.ID, bot.Mention(target), out, false)
	if text == "" {
		return
	}
	r.sendTemporary(ctx, htmlMessage(chat.ID, text), ttl)
}

func (r *Reactor) outcomeText(ctx context.Context, chatID int64, mention string, out *moderation.Outcome, global bool) string {
	lang := r.s.GetLanguage(ctx, chatID, nil)
	switch {
	case out.Escalated:
		return fmt.Sprintf(i18n.Get("%s has been banned after reaching %d warnings.", lang), mention, out.Warnings)
	case out.Action == db.ActionWarn && global:
		return fmt.Sprintf(i18n.Get("%s has been warned globally. Warnings: %d/%d", lang), mention, out.Warnings, out.MaxWarnings)
	case out.Action == db.ActionWarn:
		return fmt.Sprintf(i18n.Get("%s has been warned. Warnings: %d/%d", lang), mention, out.Warnings, out.MaxWarnings)
	case out.Action == db.ActionMute:
		return fmt.Sprintf(i18n.Get("%s has been muted until %s.", lang), mention, out.Until.UTC().Format("2006-01-02 15:04 MST"))
	case out.Action == db.ActionKick:
		return fmt.Sprintf(i18n.Get("%s has been kicked.", lang), mention)
	case out.Action == db.ActionBan && global:
		return fmt.Sprintf(i18n.Get("%s has been banned in all chats.", lang), mention)
	case out.Action == db.ActionBan:
		return fmt.Sprintf(i18n.Get("%s has been banned.", lang), mention)
	default:
		return ""
	}
}
