package chat

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	ngerrors "github.com/iamwavecut/ngguard/internal/errors"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/policy/permissions"
)

type commandScope int

const (
	scopeAny commandScope = iota
	scopeGroup
	scopeAdmin
	scopeSuperAdmin
)

type (
	commandFunc func(ctx context.Context, c *commandContext) error

	command struct {
		scope commandScope
		run   commandFunc
		// silent commands delete themselves and send no confirmation.
		silent bool
		global bool
	}

	commandContext struct {
		msg      *api.Message
		chat     *api.Chat
		user     *api.User
		settings *db.Settings
		lang     string
		name     string
		args     []string
		rawArgs  string
		silent   bool
		global   bool
	}
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhd]?)$`)

// maxCommandDuration is the longest restriction Telegram keeps as temporary.
const maxCommandDuration = 366 * 24 * time.Hour

func (r *Reactor) registerCommands() map[string]command {
	cmds := map[string]command{
		"start":      {scope: scopeAny, run: r.startCommand},
		"help":       {scope: scopeAny, run: r.helpCommand},
		"id":         {scope: scopeAny, run: r.idCommand},
		"skipreason": {scope: scopeAdmin, run: r.skipReasonCommand},
		"settings":   {scope: scopeAdmin, run: r.settingsCommand},
	}
	for name, cmd := range r.moderationCommands() {
		cmds[name] = cmd
	}
	for name, cmd := range r.settingsCommands() {
		cmds[name] = cmd
	}
	for name, cmd := range r.filterCommands() {
		cmds[name] = cmd
	}
	for name, cmd := range r.contentCommands() {
		cmds[name] = cmd
	}
	for name, cmd := range r.reportCommands() {
		cmds[name] = cmd
	}
	return cmds
}

func (r *Reactor) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, settings *db.Settings) error {
	entry := r.getLogEntry().WithFields(log.Fields{
		"method":  "handleCommand",
		"chat_id": chat.ID,
		"user_id": user.ID,
	})
	name := strings.ToLower(msg.Command())
	rawArgs := strings.TrimSpace(msg.CommandArguments())
	c := &commandContext{
		msg:      msg,
		chat:     chat,
		user:     user,
		settings: settings,
		lang:     r.s.GetLanguage(ctx, chat.ID, user),
		name:     name,
		args:     strings.Fields(rawArgs),
		rawArgs:  rawArgs,
	}

	cmd, ok := r.commands[name]
	if !ok {
		return r.customCommand(ctx, c)
	}
	c.silent = cmd.silent
	c.global = cmd.global

	decision, err := r.authorize(ctx, cmd.scope, c)
	if err != nil {
		return errors.WithMessagef(err, "authorize /%s", name)
	}
	if !decision.Allowed {
		entry.WithFields(log.Fields{"command": name, "reason": decision.Reason}).Info("command denied")
		return r.reply(ctx, c, i18n.Get(decision.Reason, c.lang))
	}

	if cmd.silent || (settings.AutoDeleteCommands && cmd.scope != scopeAny) {
		r.deleteMessage(ctx, entry, chat.ID, msg.MessageID)
	}
	entry.WithField("command", name).Debug("running command")
	return cmd.run(ctx, c)
}

func (r *Reactor) authorize(ctx context.Context, scope commandScope, c *commandContext) (permissions.Decision, error) {
	if scope == scopeAny {
		return permissions.Allow(), nil
	}
	if d := permissions.RequireGroup(c.chat); !d.Allowed {
		return d, nil
	}
	switch scope {
	case scopeAdmin:
		return permissions.RequireAdmin(ctx, r.s, c.chat.ID, c.user.ID)
	case scopeSuperAdmin:
		return permissions.RequireSuperAdmin(r.s, c.user.ID), nil
	default:
		return permissions.Allow(), nil
	}
}

// reply answers the command unless it is a silent variant.
func (r *Reactor) reply(ctx context.Context, c *commandContext, text string) error {
	if c.silent || text == "" {
		return nil
	}
	msg := htmlMessage(c.chat.ID, text)
	msg.ReplyParameters.MessageID = c.msg.MessageID
	msg.ReplyParameters.ChatID = c.chat.ID
	msg.ReplyParameters.AllowSendingWithoutReply = true
	if c.msg.Chat.IsForum {
		msg.MessageThreadID = c.msg.MessageThreadID
	}
	if _, err := r.s.GetPlatform().Send(ctx, msg); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant reply to command")
	}
	return nil
}

func (r *Reactor) replyf(ctx context.Context, c *commandContext, key string, args ...any) error {
	return r.reply(ctx, c, fmt.Sprintf(i18n.Get(key, c.lang), args...))
}

// target resolves the command subject from the replied message or the first argument,
// returning the remaining arguments.
func (r *Reactor) target(c *commandContext) (int64, *api.User, []string) {
	if reply := c.msg.ReplyToMessage; reply != nil && reply.From != nil && !isTopicReply(c.msg) {
		return reply.From.ID, reply.From, c.args
	}
	if len(c.args) == 0 {
		return 0, nil, nil
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(c.args[0], "@"), 10, 64)
	if err != nil || id == 0 {
		return 0, nil, c.args
	}
	return id, &api.User{ID: id, FirstName: strconv.FormatInt(id, 10)}, c.args[1:]
}

func isTopicReply(msg *api.Message) bool {
	return msg.IsTopicMessage && msg.ReplyToMessage != nil && msg.ReplyToMessage.MessageID == msg.MessageThreadID
}

// parseSwitch accepts on and off.
func parseSwitch(args []string) (bool, error) {
	if len(args) == 0 {
		return false, ngerrors.ErrInvalidInput
	}
	switch strings.ToLower(args[0]) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	default:
		return false, errors.WithMessage(ngerrors.ErrInvalidInput, args[0])
	}
}

// parseDuration reads 90, 90s, 15m, 2h or 1d. A bare number is seconds.
func parseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, errors.WithMessage(ngerrors.ErrInvalidInput, s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.WithMessage(ngerrors.ErrInvalidInput, s)
	}
	unit := time.Second
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if n > int64(maxCommandDuration/unit) {
		return 0, errors.WithMessage(ngerrors.ErrInvalidInput, s)
	}
	return time.Duration(n) * unit, nil
}

// parseBounded reads an integer within [lo, hi].
func parseBounded(args []string, lo, hi int64) (int64, error) {
	if len(args) == 0 {
		return 0, ngerrors.ErrInvalidInput
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n < lo || n > hi {
		return 0, errors.WithMessage(ngerrors.ErrInvalidInput, args[0])
	}
	return n, nil
}

func (r *Reactor) startCommand(ctx context.Context, c *commandContext) error {
	return r.reply(ctx, c, i18n.Get("Hi! I moderate group chats. Add me to a group and make me an admin. Send /help for the list of commands.", c.lang))
}

func (r *Reactor) helpCommand(ctx context.Context, c *commandContext) error {
	return r.reply(ctx, c, helpText)
}

const helpText = `<b>Moderation</b>
/warn /unwarn /warns /resetwarns
/mute [duration] /unmute /kick /ban /unban
/swarn /smute /skick /sban: silent variants
/whitelist /unwhitelist /whitelisted /checkwhitelist

<b>Global</b>
/gwarn /gban /sgban /gunban /gkick
/gwhitelist /gunwhitelist

<b>Protection</b>
/setflood N, /setfloodmode mute|kick|ban [duration], /flood
/addfilter word [action], /addregex pattern [action], /delfilter, /filters
/blacklist domain [action], /whitelisturl domain, /delurl domain, /urls
/lock type [action], /unlock type, /locks, /antispam on|off
/nightmode on|off, /setnight HH:MM HH:MM, /settimezone Zone
/slowmode on|off|seconds, /silence, /unsilence, /underattack on|off

<b>Members</b>
/captcha on|off, /captchatime seconds
/welcome on|off, /setwelcome text, /goodbye on|off, /setgoodbye text
/addadmin, /deladmin, /admins, /promote [title], /demote, /title text

<b>Content</b>
/save name text, /get name, #name, /clear name, /notes
/setrules text, /rules, /clearrules
/addcmd name response, /delcmd name, /cmds

<b>Reports</b>
/report [reason], /reports on|off, /reportcooldown seconds, /pendingreports`

func (r *Reactor) idCommand(ctx context.Context, c *commandContext) error {
	if reply := c.msg.ReplyToMessage; reply != nil && reply.From != nil && !isTopicReply(c.msg) {
		return r.replyf(ctx, c, "User ID: <code>%d</code>", reply.From.ID)
	}
	return r.replyf(ctx, c, "Your ID: <code>%d</code>\nChat ID: <code>%d</code>", c.user.ID, c.chat.ID)
}

func (r *Reactor) skipReasonCommand(ctx context.Context, c *commandContext) error {
	if c.msg.ReplyToMessage == nil {
		return r.reply(ctx, c, i18n.Get("Reply to a message to see how it was processed.", c.lang))
	}
	result := r.GetLastProcessingResult(c.chat.ID, c.msg.ReplyToMessage.MessageID)
	if result == nil {
		return r.reply(ctx, c, i18n.Get("No processing information available for this message.", c.lang))
	}

	var response string
	switch {
	case result.Verdict != nil:
		response = fmt.Sprintf("Stage: %s\nFilter: %s\nRule: %s\nAction: %s",
			result.Stage, result.Verdict.Filter, bot.EscapeHTML(result.Verdict.Rule), result.Verdict.Action)
	case result.Outcome != nil:
		response = fmt.Sprintf("Stage: %s\nAction: %s", result.Stage, result.Outcome.Action)
	case result.Skipped:
		response = fmt.Sprintf("Stage: %s\nSkipped: %s", result.Stage, result.SkipReason)
	default:
		response = fmt.Sprintf("Stage: %s\nDeleted: %t", result.Stage, result.Deleted)
	}
	return r.reply(ctx, c, response)
}
