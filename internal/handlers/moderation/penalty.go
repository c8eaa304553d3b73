package moderation

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const DefaultMuteDuration = time.Hour

type (
	// Penalty describes a single moderation action against a user.
	Penalty struct {
		ChatID    int64
		UserID    int64
		ActorID   int64
		MessageID int
		Action    db.Action
		Duration  time.Duration
		Reason    string
		Global    bool
	}

	// Outcome is what Apply actually did. Remote failures do not fail the call.
	Outcome struct {
		Action         db.Action
		Escalated      bool
		Warnings       int
		MaxWarnings    int
		Until          time.Time
		MessageDeleted bool
		RemoteErrors   []error
	}
)

func (o *Outcome) remote(err error) {
	if err != nil {
		o.RemoteErrors = append(o.RemoteErrors, err)
	}
}

// PenaltyExecutor writes moderation records and applies their effect on the platform.
type PenaltyExecutor struct {
	s            bot.Service
	muteDuration time.Duration
	now          func() time.Time
	warnMu       sync.Mutex
	logger       *log.Entry
}

func NewPenaltyExecutor(s bot.Service, muteDuration time.Duration) *PenaltyExecutor {
	if muteDuration <= 0 {
		muteDuration = DefaultMuteDuration
	}
	return &PenaltyExecutor{
		s:            s,
		muteDuration: muteDuration,
		now:          time.Now,
		logger:       log.WithField("object", "PenaltyExecutor"),
	}
}

// Apply deletes the offending message first, then performs the action.
// The error return is reserved for store failures.
func (e *PenaltyExecutor) Apply(ctx context.Context, p Penalty) (*Outcome, error) {
	entry := e.logger.WithFields(log.Fields{
		"method": "Apply",
		"chat":   p.ChatID,
		"user":   p.UserID,
		"action": p.Action,
		"global": p.Global,
	})
	out := &Outcome{Action: p.Action}
	platform := e.s.GetPlatform()

	if p.MessageID != 0 {
		if err := platform.DeleteMessage(ctx, p.ChatID, p.MessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete offending message")
			out.remote(errors.WithMessage(err, "delete message"))
		} else {
			out.MessageDeleted = true
		}
	}

	var err error
	switch p.Action {
	case db.ActionDelete:
	case db.ActionWarn:
		err = e.warn(ctx, p, out)
	case db.ActionMute:
		err = e.mute(ctx, p, out)
	case db.ActionKick:
		out.remote(e.kick(ctx, p.ChatID, p.UserID))
	case db.ActionBan:
		err = e.ban(ctx, p, out)
	default:
		return nil, errors.WithMessage(db.ErrUnknownAction, string(p.Action))
	}
	if err != nil {
		return nil, err
	}

	for _, remoteErr := range out.RemoteErrors {
		entry.WithField("error", remoteErr.Error()).Warn("remote action failed")
	}
	observability.RecordPenalty(string(out.Action), len(out.RemoteErrors) == 0)
	entry.WithField("effective", out.Action).Debug("penalty applied")
	return out, nil
}

func (e *PenaltyExecutor) record(ctx context.Context, kind db.RecordKind, p Penalty, expires time.Time) error {
	rec := &db.ModerationRecord{
		Kind:      kind,
		ChatID:    p.ChatID,
		UserID:    p.UserID,
		IsGlobal:  p.Global,
		ActorID:   p.ActorID,
		Reason:    p.Reason,
		CreatedAt: e.now(),
	}
	if p.Global {
		rec.ChatID = db.GlobalChatID
	}
	if !expires.IsZero() {
		rec.ExpiresAt = sql.NullTime{Time: expires, Valid: true}
	}
	if _, err := e.s.GetDB().AddRecord(ctx, rec); err != nil {
		return errors.WithMessagef(err, "add %s record", kind)
	}
	return nil
}

func (e *PenaltyExecutor) warn(ctx context.Context, p Penalty, out *Outcome) error {
	settings, err := e.s.GetSettings(ctx, p.ChatID)
	if err != nil {
		return errors.WithMessage(err, "get settings")
	}
	out.MaxWarnings = settings.GetMaxWarnings()

	e.warnMu.Lock()
	defer e.warnMu.Unlock()

	if err := e.record(ctx, db.RecordWarning, p, time.Time{}); err != nil {
		return err
	}
	count, err := e.s.GetDB().CountWarnings(ctx, p.ChatID, p.UserID)
	if err != nil {
		return errors.WithMessage(err, "count warnings")
	}
	out.Warnings = count
	if count < out.MaxWarnings {
		return nil
	}

	// the limit is per chat, so the ban stays in the chat that hit it
	escalation := p
	escalation.Global = false
	out.Escalated = true
	out.Action = db.ActionBan
	return e.ban(ctx, escalation, out)
}

func (e *PenaltyExecutor) mute(ctx context.Context, p Penalty, out *Outcome) error {
	d := p.Duration
	if d <= 0 {
		d = e.muteDuration
	}
	out.Until = e.now().Add(d)
	if err := e.s.GetPlatform().RestrictMember(ctx, p.ChatID, p.UserID, out.Until); err != nil {
		out.remote(errors.WithMessage(err, "restrict"))
	}
	return e.record(ctx, db.RecordMute, p, out.Until)
}

func (e *PenaltyExecutor) ban(ctx context.Context, p Penalty, out *Outcome) error {
	if err := e.s.GetPlatform().BanMember(ctx, p.ChatID, p.UserID, time.Time{}); err != nil {
		out.remote(errors.WithMessage(err, "ban"))
	}
	return e.record(ctx, db.RecordBan, p, time.Time{})
}

func (e *PenaltyExecutor) kick(ctx context.Context, chatID, userID int64) error {
	platform := e.s.GetPlatform()
	if err := platform.BanMember(ctx, chatID, userID, time.Time{}); err != nil {
		return errors.WithMessage(err, "kick")
	}
	if err := platform.UnbanMember(ctx, chatID, userID); err != nil {
		return errors.WithMessage(err, "unban after kick")
	}
	return nil
}

// Kick removes a user without recording anything. Returns the remote error, if any.
func (e *PenaltyExecutor) Kick(ctx context.Context, chatID, userID int64) error {
	return e.kick(ctx, chatID, userID)
}
