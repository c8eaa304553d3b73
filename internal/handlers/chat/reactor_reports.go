package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	reportCallbackPrefix = "rep"
	maxReportFanout      = 8
)

var reportButtonLabels = map[moderation.ReportAction]string{
	moderation.ReportBan:     "Ban",
	moderation.ReportKick:    "Kick",
	moderation.ReportMute:    "Mute",
	moderation.ReportWarn:    "Warn",
	moderation.ReportDelete:  "Delete message",
	moderation.ReportResolve: "Resolve",
	moderation.ReportDismiss: "Dismiss",
}

func (r *Reactor) reportCommands() map[string]command {
	return map[string]command{
		"report":         {scope: scopeGroup, run: r.reportCommand},
		"pendingreports": {scope: scopeAdmin, run: r.pendingReportsCommand},
	}
}

func reportCallbackData(action moderation.ReportAction, reportID int64) string {
	return fmt.Sprintf("%s;%s;%d", reportCallbackPrefix, action, reportID)
}

func parseReportCallback(data string) (moderation.ReportAction, int64, bool) {
	parts := strings.Split(data, ";")
	if len(parts) != 3 || parts[0] != reportCallbackPrefix {
		return "", 0, false
	}
	action, ok := moderation.ParseReportAction(parts[1])
	if !ok {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return action, id, true
}

func reportKeyboard(reportID int64, lang string) api.InlineKeyboardMarkup {
	button := func(a moderation.ReportAction) api.InlineKeyboardButton {
		return api.NewInlineKeyboardButtonData(i18n.Get(reportButtonLabels[a], lang), reportCallbackData(a, reportID))
	}
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			button(moderation.ReportBan),
			button(moderation.ReportKick),
			button(moderation.ReportMute),
			button(moderation.ReportWarn),
		),
		api.NewInlineKeyboardRow(
			button(moderation.ReportDelete),
			button(moderation.ReportResolve),
			button(moderation.ReportDismiss),
		),
	)
}

func (r *Reactor) reportCommand(ctx context.Context, c *commandContext) error {
	entry := r.getLogEntry().WithFields(log.Fields{
		"method":  "reportCommand",
		"chat_id": c.chat.ID,
		"user_id": c.user.ID,
	})
	reply := c.msg.ReplyToMessage
	if reply == nil || reply.From == nil || isTopicReply(c.msg) {
		return r.reply(ctx, c, i18n.Get("Reply to a message to report it.", c.lang))
	}
	r.deleteMessage(ctx, entry, c.chat.ID, c.msg.MessageID)

	report, err := r.reports.File(ctx, moderation.FileRequest{
		ChatID:         c.chat.ID,
		ReporterID:     c.user.ID,
		ReportedUserID: reply.From.ID,
		MessageID:      reply.MessageID,
		Reason:         c.rawArgs,
	})
	var cooldown *moderation.CooldownError
	switch {
	case errors.Is(err, moderation.ErrReportsDisabled):
		return r.notify(ctx, c, i18n.Get("Reports are disabled in this chat.", c.lang))
	case errors.As(err, &cooldown):
		return r.notify(ctx, c, fmt.Sprintf(
			i18n.Get("You can report again in %s.", c.lang),
			cooldown.Remaining.Round(time.Second),
		))
	case errors.Is(err, moderation.ErrReportedAdmin):
		return r.notify(ctx, c, i18n.Get("Admins cannot be reported.", c.lang))
	case errors.Is(err, moderation.ErrSelfReport):
		return r.notify(ctx, c, i18n.Get("You cannot report yourself.", c.lang))
	case err != nil:
		return errors.WithMessage(err, "file report")
	}
	entry.WithField("report_id", report.ID).Info("report filed")

	r.broadcastReport(ctx, c.chat, c.user, reply.From, report)
	return nil
}

// notify answers a report without replying to the deleted command.
func (r *Reactor) notify(ctx context.Context, c *commandContext, text string) error {
	r.sendTemporary(ctx, htmlMessage(c.chat.ID, text), nightNoticeTTL)
	return nil
}

func (r *Reactor) reportText(chat *api.Chat, reporter *api.User, reported *api.User, report *db.Report, lang string) string {
	return fmt.Sprintf(
		i18n.Get("Report #%d in %s\nFrom: %s\nAgainst: %s\nReason: %s", lang),
		report.ID,
		bot.EscapeHTML(chat.Title),
		bot.Mention(reporter),
		bot.Mention(reported),
		bot.EscapeHTML(report.Reason),
	)
}

// broadcastReport posts the report to the chat and privately to every registered admin.
func (r *Reactor) broadcastReport(ctx context.Context, chat *api.Chat, reporter, reported *api.User, report *db.Report) {
	entry := r.getLogEntry().WithFields(log.Fields{
		"method":    "broadcastReport",
		"report_id": report.ID,
	})
	platform := r.s.GetPlatform()

	lang := r.s.GetLanguage(ctx, chat.ID, nil)
	msg := htmlMessage(chat.ID, r.reportText(chat, reporter, reported, report, lang))
	msg.ReplyParameters.MessageID = report.MessageID
	msg.ReplyParameters.ChatID = chat.ID
	msg.ReplyParameters.AllowSendingWithoutReply = true
	msg.ReplyMarkup = reportKeyboard(report.ID, lang)
	if _, err := platform.Send(ctx, msg); err != nil {
		entry.WithField("error", err.Error()).Warn("cant post report to chat")
	}

	admins, err := r.store.ListAdmins(ctx, chat.ID)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant list admins")
		return
	}
	var g errgroup.Group
	g.SetLimit(maxReportFanout)
	for _, adminID := range admins {
		g.Go(func() error {
			dm := htmlMessage(adminID, r.reportText(chat, reporter, reported, report, lang))
			dm.ReplyMarkup = reportKeyboard(report.ID, lang)
			if _, err := platform.Send(ctx, dm); err != nil {
				return errors.WithMessagef(err, "admin %d", adminID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		entry.WithField("error", err.Error()).Debug("cant deliver report to some admins")
	}
}

func (r *Reactor) pendingReportsCommand(ctx context.Context, c *commandContext) error {
	reports, err := r.reports.Pending(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list pending reports")
	}
	if len(reports) == 0 {
		return r.reply(ctx, c, i18n.Get("There are no pending reports.", c.lang))
	}
	lines := make([]string, 0, len(reports))
	for _, rep := range reports {
		lines = append(lines, fmt.Sprintf("#%d %s → %s: %s",
			rep.ID,
			bot.MentionID(rep.ReporterID, strconv.FormatInt(rep.ReporterID, 10)),
			bot.MentionID(rep.ReportedUserID, strconv.FormatInt(rep.ReportedUserID, 10)),
			bot.EscapeHTML(rep.Reason),
		))
	}
	return r.reply(ctx, c, i18n.Get("Pending reports:", c.lang)+"\n"+strings.Join(lines, "\n"))
}

func (r *Reactor) handleReportCallback(ctx context.Context, cq *api.CallbackQuery) error {
	entry := r.getLogEntry().WithFields(log.Fields{
		"method":  "handleReportCallback",
		"user_id": cq.From.ID,
	})
	platform := r.s.GetPlatform()
	lang := r.s.GetLanguage(ctx, 0, cq.From)

	action, reportID, ok := parseReportCallback(cq.Data)
	if !ok {
		return platform.AnswerCallback(ctx, cq.ID, "", false)
	}
	res, err := r.reports.Resolve(ctx, reportID, cq.From.ID, action)
	if err != nil {
		_ = platform.AnswerCallback(ctx, cq.ID, i18n.Get("Something went wrong.", lang), true)
		return errors.WithMessage(err, "resolve report")
	}

	switch res.Status {
	case moderation.NotFound:
		return platform.AnswerCallback(ctx, cq.ID, i18n.Get("This report no longer exists.", lang), true)
	case moderation.Unauthorized:
		return platform.AnswerCallback(ctx, cq.ID, i18n.Get("Only admins can handle reports.", lang), true)
	case moderation.AlreadyHandled:
		r.editReportMessage(ctx, entry, cq, fmt.Sprintf(i18n.Get("Report #%d was already handled.", lang), reportID))
		return platform.AnswerCallback(ctx, cq.ID, i18n.Get("This report was already handled.", lang), false)
	}

	entry.WithFields(log.Fields{"report_id": reportID, "action": action}).Info("report resolved")
	text := fmt.Sprintf(i18n.Get("Report #%d handled by %s: %s.", lang), reportID, bot.Mention(cq.From), action)
	if res.RemoteErr != nil || (res.Outcome != nil && len(res.Outcome.RemoteErrors) > 0) {
		text += "\n" + i18n.Get("The action was recorded, but Telegram refused to apply it. Check my admin rights.", lang)
	}
	r.editReportMessage(ctx, entry, cq, text)
	_ = platform.AnswerCallback(ctx, cq.ID, i18n.Get("Done.", lang), false)

	r.notifyReporter(ctx, entry, res.Report, action)
	return nil
}

func (r *Reactor) editReportMessage(ctx context.Context, entry *log.Entry, cq *api.CallbackQuery, text string) {
	if cq.Message == nil {
		return
	}
	if err := r.s.GetPlatform().EditMessageText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, text); err != nil {
		entry.WithField("error", err.Error()).Debug("cant edit report message")
	}
}

func (r *Reactor) notifyReporter(ctx context.Context, entry *log.Entry, report *db.Report, action moderation.ReportAction) {
	lang := r.s.GetLanguage(ctx, report.ChatID, nil)
	key := "Your report #%d has been reviewed. Thank you!"
	if action == moderation.ReportDismiss {
		key = "Your report #%d has been dismissed."
	}
	msg := htmlMessage(report.ReporterID, fmt.Sprintf(i18n.Get(key, lang), report.ID))
	if _, err := r.s.GetPlatform().Send(ctx, msg); err != nil {
		entry.WithField("error", err.Error()).Debug("cant notify reporter")
	}
}
