package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

func (r *Reactor) filterCommands() map[string]command {
	return map[string]command{
		"addfilter": {scope: scopeAdmin, run: r.addWordCommand(false)},
		"addregex":  {scope: scopeAdmin, run: r.addWordCommand(true)},
		"delfilter": {scope: scopeAdmin, run: r.delWordCommand},
		"filters":   {scope: scopeAdmin, run: r.listWordsCommand},

		"blacklist":    {scope: scopeAdmin, run: r.addURLCommand(false)},
		"whitelisturl": {scope: scopeAdmin, run: r.addURLCommand(true)},
		"delurl":       {scope: scopeAdmin, run: r.delURLCommand},
		"urls":         {scope: scopeAdmin, run: r.listURLsCommand},

		"lock":   {scope: scopeAdmin, run: r.lockCommand},
		"unlock": {scope: scopeAdmin, run: r.unlockCommand},
		"locks":  {scope: scopeAdmin, run: r.listLocksCommand},
	}
}

// splitAction takes an optional trailing action off the arguments.
func splitAction(args []string, fallback db.Action) ([]string, db.Action) {
	if len(args) > 1 {
		if action, err := db.ParseAction(args[len(args)-1]); err == nil {
			return args[:len(args)-1], action
		}
	}
	return args, fallback
}

func (r *Reactor) addWordCommand(isRegex bool) commandFunc {
	return func(ctx context.Context, c *commandContext) error {
		args, action := splitAction(c.args, db.ActionDelete)
		pattern := strings.Join(args, " ")
		if pattern == "" {
			return r.replyf(ctx, c, "Usage: /%s pattern [delete|warn|mute|kick|ban]", c.name)
		}
		if isRegex {
			if _, err := regexp.Compile("(?i)" + pattern); err != nil {
				return r.replyf(ctx, c, "Invalid regular expression: %s", bot.EscapeHTML(err.Error()))
			}
		} else {
			pattern = strings.ToLower(pattern)
		}
		err := r.store.UpsertWordFilter(ctx, &db.WordFilter{
			ChatID:    c.chat.ID,
			Pattern:   pattern,
			IsRegex:   isRegex,
			Action:    action,
			CreatedBy: c.user.ID,
		})
		if err != nil {
			return errors.WithMessage(err, "upsert word filter")
		}
		r.words.Invalidate(c.chat.ID)
		return r.replyf(ctx, c, "Filter added: <code>%s</code> → %s", bot.EscapeHTML(pattern), action)
	}
}

func (r *Reactor) delWordCommand(ctx context.Context, c *commandContext) error {
	if c.rawArgs == "" {
		return r.reply(ctx, c, i18n.Get("Usage: /delfilter pattern", c.lang))
	}
	removed, err := r.store.DeleteWordFilter(ctx, c.chat.ID, c.rawArgs)
	if err == nil && !removed {
		removed, err = r.store.DeleteWordFilter(ctx, c.chat.ID, strings.ToLower(c.rawArgs))
	}
	if err != nil {
		return errors.WithMessage(err, "delete word filter")
	}
	if !removed {
		return r.reply(ctx, c, i18n.Get("No such filter.", c.lang))
	}
	r.words.Invalidate(c.chat.ID)
	return r.replyf(ctx, c, "Filter removed: <code>%s</code>", bot.EscapeHTML(c.rawArgs))
}

func (r *Reactor) listWordsCommand(ctx context.Context, c *commandContext) error {
	filters, err := r.store.ListWordFilters(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list word filters")
	}
	if len(filters) == 0 {
		return r.reply(ctx, c, i18n.Get("There are no filters in this chat.", c.lang))
	}
	lines := make([]string, 0, len(filters))
	for _, f := range filters {
		kind := "word"
		if f.IsRegex {
			kind = "regex"
		}
		lines = append(lines, fmt.Sprintf("• <code>%s</code> (%s) → %s", bot.EscapeHTML(f.Pattern), kind, f.Action))
	}
	return r.reply(ctx, c, i18n.Get("Filters:", c.lang)+"\n"+strings.Join(lines, "\n"))
}

func (r *Reactor) addURLCommand(whitelist bool) commandFunc {
	return func(ctx context.Context, c *commandContext) error {
		args, action := splitAction(c.args, db.ActionDelete)
		if len(args) != 1 {
			return r.replyf(ctx, c, "Usage: /%s domain [action]", c.name)
		}
		domain := moderation.NormalizeDomain(args[0])
		if domain == "" {
			return r.replyf(ctx, c, "Usage: /%s domain [action]", c.name)
		}
		err := r.store.UpsertURLFilter(ctx, &db.URLFilter{
			ChatID:      c.chat.ID,
			Domain:      domain,
			IsWhitelist: whitelist,
			Action:      action,
			CreatedBy:   c.user.ID,
		})
		if err != nil {
			return errors.WithMessage(err, "upsert url filter")
		}
		r.urls.Invalidate(c.chat.ID)
		if whitelist {
			return r.replyf(ctx, c, "Domain %s is allowed.", domain)
		}
		return r.replyf(ctx, c, "Domain %s is blocked → %s", domain, action)
	}
}

func (r *Reactor) delURLCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) != 1 {
		return r.reply(ctx, c, i18n.Get("Usage: /delurl domain", c.lang))
	}
	domain := moderation.NormalizeDomain(c.args[0])
	removed, err := r.store.DeleteURLFilter(ctx, c.chat.ID, domain)
	if err != nil {
		return errors.WithMessage(err, "delete url filter")
	}
	if !removed {
		return r.reply(ctx, c, i18n.Get("No such domain rule.", c.lang))
	}
	r.urls.Invalidate(c.chat.ID)
	return r.replyf(ctx, c, "Domain rule removed: %s", domain)
}

func (r *Reactor) listURLsCommand(ctx context.Context, c *commandContext) error {
	rules, err := r.store.ListURLFilters(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list url filters")
	}
	if len(rules) == 0 {
		return r.reply(ctx, c, i18n.Get("There are no domain rules in this chat.", c.lang))
	}
	lines := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.IsWhitelist {
			lines = append(lines, fmt.Sprintf("✅ %s", rule.Domain))
			continue
		}
		lines = append(lines, fmt.Sprintf("🚫 %s → %s", rule.Domain, rule.Action))
	}
	return r.reply(ctx, c, i18n.Get("Domain rules:", c.lang)+"\n"+strings.Join(lines, "\n"))
}

func (r *Reactor) lockCommand(ctx context.Context, c *commandContext) error {
	args, action := splitAction(c.args, db.ActionDelete)
	if len(args) != 1 {
		return r.lockUsage(ctx, c)
	}
	mediaType, ok := db.ParseMediaType(args[0])
	if !ok {
		return r.lockUsage(ctx, c)
	}
	err := r.store.UpsertMediaLock(ctx, &db.MediaLock{
		ChatID:    c.chat.ID,
		MediaType: mediaType,
		Action:    action,
		CreatedBy: c.user.ID,
	})
	if err != nil {
		return errors.WithMessage(err, "upsert media lock")
	}
	return r.replyf(ctx, c, "Locked %s → %s", mediaType, action)
}

func (r *Reactor) lockUsage(ctx context.Context, c *commandContext) error {
	types := make([]string, 0, len(db.MediaTypes()))
	for _, t := range db.MediaTypes() {
		types = append(types, string(t))
	}
	return r.replyf(ctx, c, "Usage: /%s type [action]. Types: %s", c.name, strings.Join(types, ", "))
}

func (r *Reactor) unlockCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) != 1 {
		return r.lockUsage(ctx, c)
	}
	mediaType, ok := db.ParseMediaType(c.args[0])
	if !ok {
		return r.lockUsage(ctx, c)
	}
	removed, err := r.store.DeleteMediaLock(ctx, c.chat.ID, mediaType)
	if err != nil {
		return errors.WithMessage(err, "delete media lock")
	}
	if !removed {
		return r.replyf(ctx, c, "%s is not locked.", mediaType)
	}
	return r.replyf(ctx, c, "Unlocked %s.", mediaType)
}

func (r *Reactor) listLocksCommand(ctx context.Context, c *commandContext) error {
	locks, err := r.store.ListMediaLocks(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list media locks")
	}
	if len(locks) == 0 {
		return r.reply(ctx, c, i18n.Get("Nothing is locked in this chat.", c.lang))
	}
	lines := make([]string, 0, len(locks))
	for _, l := range locks {
		lines = append(lines, fmt.Sprintf("• %s → %s", l.MediaType, l.Action))
	}
	return r.reply(ctx, c, i18n.Get("Locks:", c.lang)+"\n"+strings.Join(lines, "\n"))
}
