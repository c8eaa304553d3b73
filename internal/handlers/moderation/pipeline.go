// Package moderation holds the message filter pipeline, the penalty executor
// and the report workflow.
package moderation

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/observability"
)

type (
	// Payload is the part of an inbound message the filters look at.
	Payload struct {
		ChatID    int64
		SenderID  int64
		MessageID int
		Text      string
		Media     db.MediaType
	}

	// Verdict names the filter and rule that matched and the action to take.
	Verdict struct {
		Filter string
		Rule   string
		Action db.Action
	}

	Filter interface {
		Name() string
		Check(ctx context.Context, p Payload) (*Verdict, error)
	}

	// Exemption reports whether a sender bypasses every filter.
	Exemption interface {
		IsExempt(ctx context.Context, chatID, userID int64) (bool, error)
	}
)

type Pipeline struct {
	exempt  Exemption
	filters []Filter
	logger  *log.Entry
}

func NewPipeline(exempt Exemption, filters ...Filter) *Pipeline {
	return &Pipeline{
		exempt:  exempt,
		filters: filters,
		logger:  log.WithField("object", "Pipeline"),
	}
}

// Evaluate runs filters in order and returns the first verdict. A nil verdict means pass.
func (p *Pipeline) Evaluate(ctx context.Context, payload Payload) (*Verdict, error) {
	if p.exempt != nil {
		exempt, err := p.exempt.IsExempt(ctx, payload.ChatID, payload.SenderID)
		if err != nil {
			return nil, errors.WithMessage(err, "check exemption")
		}
		if exempt {
			return nil, nil
		}
	}

	for _, f := range p.filters {
		verdict, err := f.Check(ctx, payload)
		if err != nil {
			return nil, errors.WithMessagef(err, "filter %s", f.Name())
		}
		if verdict == nil {
			continue
		}
		if verdict.Filter == "" {
			verdict.Filter = f.Name()
		}
		p.logger.WithFields(log.Fields{
			"chat":   payload.ChatID,
			"user":   payload.SenderID,
			"filter": verdict.Filter,
			"rule":   verdict.Rule,
			"action": verdict.Action,
		}).Debug("filter matched")
		observability.RecordVerdict(verdict.Filter, string(verdict.Action))
		return verdict, nil
	}
	return nil, nil
}

// MemberExemption exempts admins and whitelisted users.
type MemberExemption struct {
	s bot.Service
}

func NewMemberExemption(s bot.Service) *MemberExemption {
	return &MemberExemption{s: s}
}

func (e *MemberExemption) IsExempt(ctx context.Context, chatID, userID int64) (bool, error) {
	isAdmin, err := e.s.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	if isAdmin {
		return true, nil
	}
	return e.s.GetDB().IsWhitelisted(ctx, chatID, userID)
}
