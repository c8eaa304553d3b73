package moderation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const (
	DefaultReportReason = "No reason provided"

	reportCooldownKeyFormat = "report_cooldown:%d:%d"
)

var (
	ErrReportsDisabled = errors.New("reports are disabled")
	ErrReportedAdmin   = errors.New("cannot report an admin")
	ErrSelfReport      = errors.New("cannot report yourself")
)

// CooldownError rejects a report filed too soon after the previous one.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("report cooldown, %s remaining", e.Remaining)
}

type ReportAction string

const (
	ReportBan     ReportAction = "ban"
	ReportKick    ReportAction = "kick"
	ReportMute    ReportAction = "mute"
	ReportWarn    ReportAction = "warn"
	ReportDelete  ReportAction = "delete"
	ReportResolve ReportAction = "resolve"
	ReportDismiss ReportAction = "dismiss"
)

var reportActions = []ReportAction{
	ReportBan, ReportKick, ReportMute, ReportWarn, ReportDelete, ReportResolve, ReportDismiss,
}

func ReportActions() []ReportAction {
	return append([]ReportAction(nil), reportActions...)
}

func ParseReportAction(s string) (ReportAction, bool) {
	for _, a := range reportActions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

type ResolutionStatus int

const (
	Applied ResolutionStatus = iota
	AlreadyHandled
	Unauthorized
	NotFound
)

func (s ResolutionStatus) String() string {
	switch s {
	case Applied:
		return "applied"
	case AlreadyHandled:
		return "already_handled"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type (
	FileRequest struct {
		ChatID         int64
		ReporterID     int64
		ReportedUserID int64
		MessageID      int
		Reason         string
	}

	Resolution struct {
		Status  ResolutionStatus
		Report  *db.Report
		Outcome *Outcome
		// RemoteErr is set when the delete action failed remotely.
		RemoteErr error
	}
)

// ReportWorkflow files user reports and resolves them exactly once.
type ReportWorkflow struct {
	s         bot.Service
	penalties *PenaltyExecutor
	now       func() time.Time
	logger    *log.Entry
}

func NewReportWorkflow(s bot.Service, penalties *PenaltyExecutor) *ReportWorkflow {
	return &ReportWorkflow{
		s:         s,
		penalties: penalties,
		now:       time.Now,
		logger:    log.WithField("object", "ReportWorkflow"),
	}
}

func (w *ReportWorkflow) File(ctx context.Context, req FileRequest) (*db.Report, error) {
	settings, err := w.s.GetSettings(ctx, req.ChatID)
	if err != nil {
		return nil, errors.WithMessage(err, "get settings")
	}
	if !settings.ReportsEnabled {
		return nil, ErrReportsDisabled
	}

	now := w.now()
	cooldownKey := fmt.Sprintf(reportCooldownKeyFormat, req.ChatID, req.ReporterID)
	if cooldown := settings.GetReportCooldown(); cooldown > 0 {
		raw, err := w.s.GetDB().GetKV(ctx, cooldownKey)
		if err != nil {
			return nil, errors.WithMessage(err, "get report cooldown")
		}
		if raw != "" {
			if last, err := strconv.ParseInt(raw, 10, 64); err == nil {
				if elapsed := now.Sub(time.Unix(0, last)); elapsed < cooldown {
					return nil, &CooldownError{Remaining: cooldown - elapsed}
				}
			}
		}
	}

	isAdmin, err := w.s.IsAdmin(ctx, req.ChatID, req.ReportedUserID)
	if err != nil {
		return nil, errors.WithMessage(err, "check reported admin")
	}
	if isAdmin {
		return nil, ErrReportedAdmin
	}
	if req.ReporterID == req.ReportedUserID {
		return nil, ErrSelfReport
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultReportReason
	}
	report := &db.Report{
		ChatID:         req.ChatID,
		ReporterID:     req.ReporterID,
		ReportedUserID: req.ReportedUserID,
		MessageID:      req.MessageID,
		Reason:         reason,
		Status:         db.ReportPending,
		CreatedAt:      now,
	}
	id, err := w.s.GetDB().CreateReport(ctx, report)
	if err != nil {
		return nil, errors.WithMessage(err, "create report")
	}
	report.ID = id

	if err := w.s.GetDB().SetKV(ctx, cooldownKey, strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		return nil, errors.WithMessage(err, "set report cooldown")
	}
	observability.RecordReport("filed")
	return report, nil
}

// Resolve moves a pending report to a terminal state and applies the action.
// Only the caller winning the conditional update applies anything.
func (w *ReportWorkflow) Resolve(ctx context.Context, reportID, adminID int64, action ReportAction) (*Resolution, error) {
	entry := w.logger.WithFields(log.Fields{
		"method": "Resolve",
		"report": reportID,
		"admin":  adminID,
		"action": action,
	})

	report, err := w.s.GetDB().GetReport(ctx, reportID)
	if err != nil {
		return nil, errors.WithMessage(err, "get report")
	}
	if report == nil {
		return &Resolution{Status: NotFound}, nil
	}

	isAdmin, err := w.s.IsAdmin(ctx, report.ChatID, adminID)
	if err != nil {
		return nil, errors.WithMessage(err, "check admin")
	}
	if !isAdmin {
		entry.Info("report resolve denied")
		return &Resolution{Status: Unauthorized, Report: report}, nil
	}

	status := db.ReportResolved
	if action == ReportDismiss {
		status = db.ReportDismissed
	}
	now := w.now()
	won, err := w.s.GetDB().TransitionReport(ctx, reportID, status, adminID, now)
	if err != nil {
		return nil, errors.WithMessage(err, "transition report")
	}
	if !won {
		entry.Debug("report already handled")
		observability.RecordReport("already_handled")
		return &Resolution{Status: AlreadyHandled, Report: report}, nil
	}
	report.Status = status
	report.HandledBy.Int64, report.HandledBy.Valid = adminID, true
	report.ResolvedAt.Time, report.ResolvedAt.Valid = now, true

	res := &Resolution{Status: Applied, Report: report}
	penalty := Penalty{
		ChatID:  report.ChatID,
		UserID:  report.ReportedUserID,
		ActorID: adminID,
		Reason:  "Report: " + report.Reason,
	}
	switch action {
	case ReportBan:
		penalty.Action = db.ActionBan
	case ReportKick:
		penalty.Action = db.ActionKick
	case ReportMute:
		penalty.Action = db.ActionMute
	case ReportWarn:
		penalty.Action = db.ActionWarn
	case ReportDelete:
		if err := w.s.GetPlatform().DeleteMessage(ctx, report.ChatID, report.MessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete reported message")
			res.RemoteErr = err
		}
	}
	if penalty.Action != "" {
		out, err := w.penalties.Apply(ctx, penalty)
		if err != nil {
			return nil, errors.WithMessage(err, "apply report penalty")
		}
		res.Outcome = out
	}
	observability.RecordReport(string(status))
	return res, nil
}

// Pending lists unresolved reports of a chat.
func (w *ReportWorkflow) Pending(ctx context.Context, chatID int64) ([]db.Report, error) {
	return w.s.GetDB().ListPendingReports(ctx, chatID)
}
