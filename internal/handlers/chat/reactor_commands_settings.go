package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/flood"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/timegate"
)

const (
	maxFloodLimit     = 100
	minSlowModeDelay  = 1
	maxSlowModeDelay  = 3600
	minCaptchaTimeout = 30
	maxCaptchaTimeout = 3600
	maxReportCooldown = 3600
)

func (r *Reactor) settingsCommands() map[string]command {
	return map[string]command{
		"setflood":     {scope: scopeAdmin, run: r.setFloodCommand},
		"setfloodmode": {scope: scopeAdmin, run: r.setFloodModeCommand},
		"flood":        {scope: scopeGroup, run: r.floodCommand},

		"nightmode":   {scope: scopeAdmin, run: r.nightModeCommand},
		"setnight":    {scope: scopeAdmin, run: r.setNightCommand},
		"settimezone": {scope: scopeAdmin, run: r.setTimezoneCommand},
		"slowmode":    {scope: scopeAdmin, run: r.slowModeCommand},

		"silence":     {scope: scopeAdmin, run: r.silenceCommand(true)},
		"unsilence":   {scope: scopeAdmin, run: r.silenceCommand(false)},
		"underattack": {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.UnderAttack = on }, "Under attack mode")},
		"antispam":    {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.AntispamEnabled = on }, "Anti-spam")},
		"autodelete":  {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.AutoDeleteCommands = on }, "Command auto-delete")},

		"captcha":     {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.CaptchaEnabled = on }, "Captcha")},
		"captchatime": {scope: scopeAdmin, run: r.captchaTimeCommand},
		"welcome":     {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.WelcomeEnabled = on }, "Welcome message")},
		"setwelcome":  {scope: scopeAdmin, run: r.setGreetingCommand(true)},
		"goodbye":     {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.GoodbyeEnabled = on }, "Goodbye message")},
		"setgoodbye":  {scope: scopeAdmin, run: r.setGreetingCommand(false)},
		"setlang":     {scope: scopeAdmin, run: r.setLanguageCommand},

		"reports":        {scope: scopeAdmin, run: r.switchCommand(func(s *db.Settings, on bool) { s.ReportsEnabled = on }, "Reports")},
		"reportcooldown": {scope: scopeAdmin, run: r.reportCooldownCommand},
	}
}

func (r *Reactor) saveSettings(ctx context.Context, settings *db.Settings) error {
	if err := r.s.SetSettings(ctx, settings); err != nil {
		return errors.WithMessage(err, "save settings")
	}
	return nil
}

func stateText(on bool, lang string) string {
	if on {
		return i18n.Get("on", lang)
	}
	return i18n.Get("off", lang)
}

// switchCommand builds an on|off toggle of a settings flag.
func (r *Reactor) switchCommand(set func(s *db.Settings, on bool), label string) commandFunc {
	return func(ctx context.Context, c *commandContext) error {
		on, err := parseSwitch(c.args)
		if err != nil {
			return r.replyf(ctx, c, "Usage: /%s on|off", c.name)
		}
		set(c.settings, on)
		if err := r.saveSettings(ctx, c.settings); err != nil {
			return err
		}
		return r.replyf(ctx, c, "%s: %s.", i18n.Get(label, c.lang), stateText(on, c.lang))
	}
}

func (r *Reactor) silenceCommand(on bool) commandFunc {
	return func(ctx context.Context, c *commandContext) error {
		c.settings.Silenced = on
		if err := r.saveSettings(ctx, c.settings); err != nil {
			return err
		}
		if on {
			return r.reply(ctx, c, i18n.Get("The chat is silenced. Only admins can write now.", c.lang))
		}
		return r.reply(ctx, c, i18n.Get("The chat is no longer silenced.", c.lang))
	}
}

func (r *Reactor) setFloodCommand(ctx context.Context, c *commandContext) error {
	limit, err := parseBounded(c.args, 0, maxFloodLimit)
	if err != nil {
		return r.replyf(ctx, c, "Usage: /setflood N, where N is 1..%d messages, or 0 to disable.", maxFloodLimit)
	}
	r.flood.SetLimit(c.chat.ID, int(limit))
	if limit == 0 {
		return r.reply(ctx, c, i18n.Get("Flood control is disabled.", c.lang))
	}
	policy := r.flood.Policy(c.chat.ID)
	return r.replyf(ctx, c, "Flood limit: %d messages per %s.", policy.Limit, policy.Window)
}

func (r *Reactor) setFloodModeCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) == 0 {
		return r.reply(ctx, c, i18n.Get("Usage: /setfloodmode mute|kick|ban [duration]", c.lang))
	}
	action, err := db.ParseAction(c.args[0])
	if err != nil || !tool.In(action, db.ActionMute, db.ActionKick, db.ActionBan) {
		return r.reply(ctx, c, i18n.Get("Usage: /setfloodmode mute|kick|ban [duration]", c.lang))
	}
	var duration time.Duration
	if len(c.args) > 1 {
		if duration, err = parseDuration(c.args[1]); err != nil {
			return r.reply(ctx, c, i18n.Get("Invalid duration. Use a number with an optional s, m, h or d suffix.", c.lang))
		}
	}
	r.flood.SetAction(c.chat.ID, action, duration)
	policy := r.flood.Policy(c.chat.ID)
	if action == db.ActionMute {
		return r.replyf(ctx, c, "Flood action: %s for %s.", action, policy.MuteDuration)
	}
	return r.replyf(ctx, c, "Flood action: %s.", action)
}

func (r *Reactor) floodCommand(ctx context.Context, c *commandContext) error {
	return r.reply(ctx, c, describeFlood(r.flood.Policy(c.chat.ID), c.lang))
}

func describeFlood(p flood.Policy, lang string) string {
	if !p.Enabled {
		return i18n.Get("Flood control is disabled.", lang)
	}
	return fmt.Sprintf(i18n.Get("Flood control: %d messages per %s, action %s, mute %s.", lang), p.Limit, p.Window, p.Action, p.MuteDuration)
}

func (r *Reactor) nightModeCommand(ctx context.Context, c *commandContext) error {
	on, err := parseSwitch(c.args)
	if err != nil {
		return r.reply(ctx, c, i18n.Get("Usage: /nightmode on|off", c.lang))
	}
	wasOn := c.settings.NightModeEnabled
	c.settings.NightModeEnabled = on
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	if on && !wasOn {
		r.nights.Reset(c.chat.ID)
	}
	if on {
		return r.replyf(ctx, c, "Night mode is on from %s to %s (%s).", c.settings.NightModeStart, c.settings.NightModeEnd, c.settings.Timezone)
	}
	return r.reply(ctx, c, i18n.Get("Night mode is off.", c.lang))
}

func (r *Reactor) setNightCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) != 2 {
		return r.reply(ctx, c, i18n.Get("Usage: /setnight HH:MM HH:MM", c.lang))
	}
	start, err := timegate.ParseClock(c.args[0])
	if err != nil {
		return r.reply(ctx, c, i18n.Get("Usage: /setnight HH:MM HH:MM", c.lang))
	}
	end, err := timegate.ParseClock(c.args[1])
	if err != nil {
		return r.reply(ctx, c, i18n.Get("Usage: /setnight HH:MM HH:MM", c.lang))
	}
	c.settings.NightModeStart = start.String()
	c.settings.NightModeEnd = end.String()
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	r.nights.Reset(c.chat.ID)
	return r.replyf(ctx, c, "Night hours: %s to %s.", start, end)
}

func (r *Reactor) setTimezoneCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) != 1 {
		return r.reply(ctx, c, i18n.Get("Usage: /settimezone Europe/Berlin", c.lang))
	}
	if _, err := time.LoadLocation(c.args[0]); err != nil {
		return r.replyf(ctx, c, "Unknown timezone %s.", bot.EscapeHTML(c.args[0]))
	}
	c.settings.Timezone = c.args[0]
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	r.nights.Reset(c.chat.ID)
	return r.replyf(ctx, c, "Timezone: %s.", c.settings.Timezone)
}

func (r *Reactor) slowModeCommand(ctx context.Context, c *commandContext) error {
	usage := func() error {
		return r.replyf(ctx, c, "Usage: /slowmode on|off|seconds, seconds from %d to %d.", minSlowModeDelay, maxSlowModeDelay)
	}
	if len(c.args) == 0 {
		return usage()
	}
	if on, err := parseSwitch(c.args); err == nil && !strings.ContainsAny(c.args[0], "0123456789") {
		c.settings.SlowModeEnabled = on
	} else {
		delay, err := parseBounded(c.args, minSlowModeDelay, maxSlowModeDelay)
		if err != nil {
			return usage()
		}
		c.settings.SlowModeEnabled = true
		c.settings.SlowModeDelay = delay
	}
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	if !c.settings.SlowModeEnabled {
		return r.reply(ctx, c, i18n.Get("Slow mode is off.", c.lang))
	}
	return r.replyf(ctx, c, "Slow mode is on: one message per %s.", c.settings.GetSlowModeDelay())
}

func (r *Reactor) captchaTimeCommand(ctx context.Context, c *commandContext) error {
	seconds, err := parseBounded(c.args, minCaptchaTimeout, maxCaptchaTimeout)
	if err != nil {
		return r.replyf(ctx, c, "Usage: /captchatime seconds, from %d to %d.", minCaptchaTimeout, maxCaptchaTimeout)
	}
	c.settings.CaptchaTimeout = seconds
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	return r.replyf(ctx, c, "Captcha timeout: %s.", c.settings.GetCaptchaTimeout())
}

func (r *Reactor) reportCooldownCommand(ctx context.Context, c *commandContext) error {
	seconds, err := parseBounded(c.args, 0, maxReportCooldown)
	if err != nil {
		return r.replyf(ctx, c, "Usage: /reportcooldown seconds, from 0 to %d.", maxReportCooldown)
	}
	c.settings.ReportCooldown = seconds
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	return r.replyf(ctx, c, "Report cooldown: %s.", c.settings.GetReportCooldown())
}

func (r *Reactor) setGreetingCommand(welcome bool) commandFunc {
	return func(ctx context.Context, c *commandContext) error {
		if c.rawArgs == "" {
			return r.replyf(ctx, c, "Usage: /%s text. Placeholders: {first} {last} {fullname} {username} {mention} {id} {chat}", c.name)
		}
		if welcome {
			c.settings.WelcomeMessage = c.rawArgs
			c.settings.WelcomeEnabled = true
		} else {
			c.settings.GoodbyeMessage = c.rawArgs
			c.settings.GoodbyeEnabled = true
		}
		if err := r.saveSettings(ctx, c.settings); err != nil {
			return err
		}
		preview := FormatGreeting(c.rawArgs, c.user, c.chat)
		return r.replyf(ctx, c, "Saved. Preview:\n%s", preview)
	}
}

func (r *Reactor) setLanguageCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) != 1 || !i18n.IsSupported(strings.ToLower(c.args[0])) {
		return r.replyf(ctx, c, "Usage: /setlang code. Supported: %s", strings.Join(i18n.GetLanguagesList(), ", "))
	}
	c.settings.Language = strings.ToLower(c.args[0])
	if err := r.saveSettings(ctx, c.settings); err != nil {
		return err
	}
	c.lang = c.settings.Language
	return r.replyf(ctx, c, "Language: %s.", i18n.GetLanguageName(c.settings.Language))
}

func (r *Reactor) settingsCommand(ctx context.Context, c *commandContext) error {
	s := c.settings
	night := stateText(false, c.lang)
	if s.NightModeEnabled {
		night = fmt.Sprintf("%s-%s %s", s.NightModeStart, s.NightModeEnd, s.Timezone)
	}
	slow := stateText(false, c.lang)
	if s.SlowModeEnabled {
		slow = s.GetSlowModeDelay().String()
	}
	text := tool.ExecTemplate(settingsTemplate, map[string]any{
		"language":    i18n.GetLanguageName(s.GetLanguage()),
		"flood":       describeFlood(r.flood.Policy(c.chat.ID), c.lang),
		"night":       night,
		"slow":        slow,
		"silenced":    stateText(s.Silenced, c.lang),
		"underAttack": stateText(s.UnderAttack, c.lang),
		"antispam":    stateText(s.AntispamEnabled, c.lang),
		"captcha":     stateText(s.CaptchaEnabled, c.lang),
		"captchaTime": s.GetCaptchaTimeout().String(),
		"welcome":     stateText(s.WelcomeEnabled, c.lang),
		"goodbye":     stateText(s.GoodbyeEnabled, c.lang),
		"reports":     stateText(s.ReportsEnabled, c.lang),
		"cooldown":    s.GetReportCooldown().String(),
		"warnings":    s.GetMaxWarnings(),
		"autodelete":  stateText(s.AutoDeleteCommands, c.lang),
	})
	return r.reply(ctx, c, i18n.Get("Settings", c.lang)+"\n"+text)
}

const settingsTemplate = `
{{- "" }}Language: {{ .language }}
{{ .flood }}
Night mode: {{ .night }}
Slow mode: {{ .slow }}
Silenced: {{ .silenced }}
Under attack: {{ .underAttack }}
Anti-spam: {{ .antispam }}
Captcha: {{ .captcha }} ({{ .captchaTime }})
Welcome: {{ .welcome }}
Goodbye: {{ .goodbye }}
Reports: {{ .reports }} (cooldown {{ .cooldown }})
Max warnings: {{ .warnings }}
Command auto-delete: {{ .autodelete }}`
