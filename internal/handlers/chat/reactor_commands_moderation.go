package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/policy/permissions"
)

const (
	maxTitleLength     = 16
	maxWhitelistListed = 20
)

func (r *Reactor) moderationCommands() map[string]command {
	return map[string]command{
		"warn":       {scope: scopeAdmin, run: r.penaltyCommand(db.ActionWarn)},
		"swarn":      {scope: scopeAdmin, run: r.penaltyCommand(db.ActionWarn), silent: true},
		"gwarn":      {scope: scopeSuperAdmin, run: r.penaltyCommand(db.ActionWarn), global: true},
		"mute":       {scope: scopeAdmin, run: r.penaltyCommand(db.ActionMute)},
		"smute":      {scope: scopeAdmin, run: r.penaltyCommand(db.ActionMute), silent: true},
		"kick":       {scope: scopeAdmin, run: r.penaltyCommand(db.ActionKick)},
		"skick":      {scope: scopeAdmin, run: r.penaltyCommand(db.ActionKick), silent: true},
		"ban":        {scope: scopeAdmin, run: r.penaltyCommand(db.ActionBan)},
		"sban":       {scope: scopeAdmin, run: r.penaltyCommand(db.ActionBan), silent: true},
		"gban":       {scope: scopeSuperAdmin, run: r.penaltyCommand(db.ActionBan), global: true},
		"sgban":      {scope: scopeSuperAdmin, run: r.penaltyCommand(db.ActionBan), global: true, silent: true},
		"gkick":      {scope: scopeSuperAdmin, run: r.globalKickCommand, global: true},
		"unwarn":     {scope: scopeAdmin, run: r.unwarnCommand},
		"resetwarns": {scope: scopeAdmin, run: r.resetWarnsCommand},
		"warns":      {scope: scopeGroup, run: r.warnsCommand},
		"unmute":     {scope: scopeAdmin, run: r.unmuteCommand},
		"unban":      {scope: scopeAdmin, run: r.unbanCommand},
		"gunban":     {scope: scopeSuperAdmin, run: r.unbanCommand, global: true},

		"whitelist":      {scope: scopeAdmin, run: r.whitelistCommand},
		"gwhitelist":     {scope: scopeSuperAdmin, run: r.whitelistCommand, global: true},
		"unwhitelist":    {scope: scopeAdmin, run: r.unwhitelistCommand},
		"gunwhitelist":   {scope: scopeSuperAdmin, run: r.unwhitelistCommand, global: true},
		"whitelisted":    {scope: scopeAdmin, run: r.whitelistedCommand},
		"checkwhitelist": {scope: scopeAdmin, run: r.checkWhitelistCommand},

		"addadmin": {scope: scopeGroup, run: r.addAdminCommand},
		"deladmin": {scope: scopeGroup, run: r.delAdminCommand},
		"admins":   {scope: scopeGroup, run: r.adminsCommand},
		"promote":  {scope: scopeGroup, run: r.promoteCommand},
		"demote":   {scope: scopeGroup, run: r.demoteCommand},
		"title":    {scope: scopeGroup, run: r.titleCommand},
	}
}

// penaltyCommand builds /warn, /mute, /kick, /ban and their silent and global variants.
func (r *Reactor) penaltyCommand(action db.Action) commandFunc {
	return func(ctx context.Context, c *commandContext) error {
		targetID, target, rest := r.target(c)

		var decision permissions.Decision
		var err error
		if c.global {
			decision = permissions.Allow()
			switch {
			case targetID == 0:
				decision = permissions.Deny(permissions.ReasonNoTarget)
			case targetID == c.user.ID:
				decision = permissions.Deny(permissions.ReasonTargetSelf)
			}
		} else {
			decision, err = permissions.CanPunish(ctx, r.s, c.chat.ID, c.user.ID, targetID)
			if err != nil {
				return errors.WithMessage(err, "check target")
			}
		}
		if !decision.Allowed {
			return r.reply(ctx, c, i18n.Get(decision.Reason, c.lang))
		}

		var duration time.Duration
		if action == db.ActionMute && len(rest) > 0 && durationPattern.MatchString(strings.ToLower(rest[0])) {
			d, err := parseDuration(rest[0])
			if err != nil {
				return r.reply(ctx, c, i18n.Get("Invalid duration. Use 1 second to 366 days, like 90, 15m, 2h or 1d.", c.lang))
			}
			duration = d
			rest = rest[1:]
		}
		reason := strings.Join(rest, " ")
		if reason == "" {
			reason = fmt.Sprintf("/%s by %d", c.name, c.user.ID)
		}

		out, err := r.penalties.Apply(ctx, moderation.Penalty{
			ChatID:   c.chat.ID,
			UserID:   targetID,
			ActorID:  c.user.ID,
			Action:   action,
			Duration: duration,
			Reason:   reason,
			Global:   c.global,
		})
		if err != nil {
			return errors.WithMessagef(err, "apply %s", action)
		}
		r.getLogEntry().WithFields(log.Fields{
			"command": c.name,
			"chat_id": c.chat.ID,
			"target":  targetID,
			"action":  out.Action,
			"remote":  len(out.RemoteErrors),
		}).Info("penalty applied by command")

		if len(out.RemoteErrors) > 0 && !c.silent {
			_ = r.reply(ctx, c, i18n.Get("The action was recorded, but Telegram refused to apply it. Check my admin rights.", c.lang))
		}
		return r.reply(ctx, c, r.outcomeText(ctx, c.chat.ID, bot.Mention(target), out, c.global))
	}
}

func (r *Reactor) punishable(ctx context.Context, c *commandContext) (int64, *api.User, bool, error) {
	targetID, target, _ := r.target(c)
	decision, err := permissions.CanPunish(ctx, r.s, c.chat.ID, c.user.ID, targetID)
	if err != nil {
		return 0, nil, false, errors.WithMessage(err, "check target")
	}
	if !decision.Allowed {
		return 0, nil, false, r.reply(ctx, c, i18n.Get(decision.Reason, c.lang))
	}
	return targetID, target, true, nil
}

func (r *Reactor) unwarnCommand(ctx context.Context, c *commandContext) error {
	targetID, target, ok, err := r.punishable(ctx, c)
	if !ok {
		return err
	}
	removed, err := r.store.DeleteLatestWarning(ctx, c.chat.ID, targetID)
	if err != nil {
		return errors.WithMessage(err, "delete latest warning")
	}
	if !removed {
		return r.replyf(ctx, c, "%s has no warnings.", bot.Mention(target))
	}
	count, err := r.store.CountWarnings(ctx, c.chat.ID, targetID)
	if err != nil {
		return errors.WithMessage(err, "count warnings")
	}
	return r.replyf(ctx, c, "Removed the latest warning of %s. Warnings: %d/%d", bot.Mention(target), count, c.settings.GetMaxWarnings())
}

func (r *Reactor) resetWarnsCommand(ctx context.Context, c *commandContext) error {
	targetID, target, ok, err := r.punishable(ctx, c)
	if !ok {
		return err
	}
	if _, err := r.store.DeleteRecords(ctx, db.RecordWarning, c.chat.ID, targetID); err != nil {
		return errors.WithMessage(err, "reset warnings")
	}
	return r.replyf(ctx, c, "Warnings of %s have been reset.", bot.Mention(target))
}

func (r *Reactor) warnsCommand(ctx context.Context, c *commandContext) error {
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		targetID, target = c.user.ID, c.user
	}
	count, err := r.store.CountWarnings(ctx, c.chat.ID, targetID)
	if err != nil {
		return errors.WithMessage(err, "count warnings")
	}
	return r.replyf(ctx, c, "%s has %d/%d warnings.", bot.Mention(target), count, c.settings.GetMaxWarnings())
}

func (r *Reactor) unmuteCommand(ctx context.Context, c *commandContext) error {
	targetID, target, ok, err := r.punishable(ctx, c)
	if !ok {
		return err
	}
	if _, err := r.store.DeleteRecords(ctx, db.RecordMute, c.chat.ID, targetID); err != nil {
		return errors.WithMessage(err, "delete mutes")
	}
	if err := r.s.GetPlatform().UnrestrictMember(ctx, c.chat.ID, targetID); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant unrestrict member")
	}
	return r.replyf(ctx, c, "%s has been unmuted.", bot.Mention(target))
}

// unbanCommand lifts local bans, or global ones for /gunban, and unbans on the platform.
func (r *Reactor) unbanCommand(ctx context.Context, c *commandContext) error {
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	chatID := c.chat.ID
	if c.global {
		chatID = db.GlobalChatID
	}
	if _, err := r.store.DeleteRecords(ctx, db.RecordBan, chatID, targetID); err != nil {
		return errors.WithMessage(err, "delete bans")
	}
	if err := r.s.GetPlatform().UnbanMember(ctx, c.chat.ID, targetID); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant unban member")
	}
	if c.global {
		return r.replyf(ctx, c, "%s has been unbanned in all chats.", bot.Mention(target))
	}
	return r.replyf(ctx, c, "%s has been unbanned.", bot.Mention(target))
}

func (r *Reactor) whitelistCommand(ctx context.Context, c *commandContext) error {
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	entry := &db.WhitelistEntry{
		ChatID:   c.chat.ID,
		UserID:   targetID,
		IsGlobal: c.global,
		AddedBy:  c.user.ID,
	}
	if c.global {
		entry.ChatID = db.GlobalChatID
	}
	if err := r.store.AddWhitelist(ctx, entry); err != nil {
		return errors.WithMessage(err, "add whitelist")
	}
	if c.global {
		return r.replyf(ctx, c, "%s is now whitelisted in all chats.", bot.Mention(target))
	}
	return r.replyf(ctx, c, "%s is now whitelisted.", bot.Mention(target))
}

// unwhitelistCommand drops the local entry, or the global one for /gunwhitelist.
func (r *Reactor) unwhitelistCommand(ctx context.Context, c *commandContext) error {
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	chatID := c.chat.ID
	if c.global {
		chatID = db.GlobalChatID
	}
	removed, err := r.store.RemoveWhitelist(ctx, chatID, targetID)
	if err != nil {
		return errors.WithMessage(err, "remove whitelist")
	}
	switch {
	case !removed && c.global:
		return r.replyf(ctx, c, "%s is not globally whitelisted.", bot.Mention(target))
	case !removed:
		return r.replyf(ctx, c, "%s is not whitelisted.", bot.Mention(target))
	case c.global:
		return r.replyf(ctx, c, "%s is no longer whitelisted in all chats.", bot.Mention(target))
	}
	return r.replyf(ctx, c, "%s is no longer whitelisted.", bot.Mention(target))
}

func (r *Reactor) whitelistedCommand(ctx context.Context, c *commandContext) error {
	entries, err := r.store.ListWhitelist(ctx, c.chat.ID, maxWhitelistListed)
	if err != nil {
		return errors.WithMessage(err, "list whitelist")
	}
	if len(entries) == 0 {
		return r.reply(ctx, c, i18n.Get("No whitelisted users found.", c.lang))
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := "• " + bot.MentionID(e.UserID, fmt.Sprint(e.UserID))
		if e.IsGlobal {
			line += " 🌐"
		}
		lines = append(lines, line)
	}
	return r.reply(ctx, c, i18n.Get("Whitelisted users:", c.lang)+"\n"+strings.Join(lines, "\n"))
}

func (r *Reactor) checkWhitelistCommand(ctx context.Context, c *commandContext) error {
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	global, err := r.store.IsWhitelisted(ctx, db.GlobalChatID, targetID)
	if err != nil {
		return errors.WithMessage(err, "check global whitelist")
	}
	if global {
		return r.replyf(ctx, c, "%s is whitelisted in all chats.", bot.Mention(target))
	}
	local, err := r.store.IsWhitelisted(ctx, c.chat.ID, targetID)
	if err != nil {
		return errors.WithMessage(err, "check whitelist")
	}
	if local {
		return r.replyf(ctx, c, "%s is whitelisted in this chat.", bot.Mention(target))
	}
	return r.replyf(ctx, c, "%s is not whitelisted.", bot.Mention(target))
}

// globalKickCommand kicks the target from every chat the bot knows. Nothing is recorded.
func (r *Reactor) globalKickCommand(ctx context.Context, c *commandContext) error {
	targetID, target, _ := r.target(c)
	switch {
	case targetID == 0:
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	case targetID == c.user.ID:
		return r.reply(ctx, c, i18n.Get(permissions.ReasonTargetSelf, c.lang))
	}
	chatIDs, err := r.store.ListChatIDs(ctx)
	if err != nil {
		return errors.WithMessage(err, "list chats")
	}
	kicked := 0
	for _, chatID := range chatIDs {
		if err := r.penalties.Kick(ctx, chatID, targetID); err != nil {
			r.getLogEntry().WithFields(log.Fields{
				"chat_id": chatID,
				"error":   err.Error(),
			}).Debug("global kick skipped chat")
			continue
		}
		kicked++
	}
	r.getLogEntry().WithFields(log.Fields{
		"target": targetID,
		"kicked": kicked,
		"chats":  len(chatIDs),
	}).Info("global kick applied")
	return r.replyf(ctx, c, "%s has been kicked from %d chats.", bot.Mention(target), kicked)
}

// requireManager checks that the caller may manage admins of the chat.
func (r *Reactor) requireManager(ctx context.Context, c *commandContext) (bool, error) {
	member, err := r.s.GetPlatform().GetChatMember(ctx, c.chat.ID, c.user.ID)
	if err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant get caller membership")
		member = nil
	}
	decision := permissions.RequireManager(r.s, c.user.ID, member)
	if !decision.Allowed {
		return false, r.reply(ctx, c, i18n.Get(decision.Reason, c.lang))
	}
	return true, nil
}

func (r *Reactor) addAdminCommand(ctx context.Context, c *commandContext) error {
	if ok, err := r.requireManager(ctx, c); !ok {
		return err
	}
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	if err := r.store.AddAdmin(ctx, &db.Admin{ChatID: c.chat.ID, UserID: targetID, AddedBy: c.user.ID}); err != nil {
		return errors.WithMessage(err, "add admin")
	}
	return r.replyf(ctx, c, "%s is now a bot admin.", bot.Mention(target))
}

func (r *Reactor) delAdminCommand(ctx context.Context, c *commandContext) error {
	if ok, err := r.requireManager(ctx, c); !ok {
		return err
	}
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	removed, err := r.store.RemoveAdmin(ctx, c.chat.ID, targetID)
	if err != nil {
		return errors.WithMessage(err, "remove admin")
	}
	if !removed {
		return r.replyf(ctx, c, "%s is not a bot admin.", bot.Mention(target))
	}
	return r.replyf(ctx, c, "%s is no longer a bot admin.", bot.Mention(target))
}

func (r *Reactor) adminsCommand(ctx context.Context, c *commandContext) error {
	ids, err := r.store.ListAdmins(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list admins")
	}
	if len(ids) == 0 {
		return r.reply(ctx, c, i18n.Get("There are no bot admins in this chat.", c.lang))
	}
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, "• "+bot.MentionID(id, fmt.Sprint(id)))
	}
	return r.reply(ctx, c, i18n.Get("Bot admins:", c.lang)+"\n"+strings.Join(lines, "\n"))
}

func (r *Reactor) promoteCommand(ctx context.Context, c *commandContext) error {
	if ok, err := r.requireManager(ctx, c); !ok {
		return err
	}
	targetID, target, rest := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	platform := r.s.GetPlatform()
	if err := platform.PromoteMember(ctx, c.chat.ID, targetID, true); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant promote member")
		return r.reply(ctx, c, i18n.Get("I could not promote this user. Check my admin rights.", c.lang))
	}
	r.s.InvalidateAdmins(c.chat.ID)
	if title := truncateTitle(strings.Join(rest, " ")); title != "" {
		if err := platform.SetAdminTitle(ctx, c.chat.ID, targetID, title); err != nil {
			r.getLogEntry().WithField("error", err.Error()).Warn("cant set admin title")
		}
	}
	return r.replyf(ctx, c, "%s has been promoted.", bot.Mention(target))
}

func (r *Reactor) demoteCommand(ctx context.Context, c *commandContext) error {
	if ok, err := r.requireManager(ctx, c); !ok {
		return err
	}
	targetID, target, _ := r.target(c)
	if targetID == 0 {
		return r.reply(ctx, c, i18n.Get(permissions.ReasonNoTarget, c.lang))
	}
	if err := r.s.GetPlatform().PromoteMember(ctx, c.chat.ID, targetID, false); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant demote member")
		return r.reply(ctx, c, i18n.Get("I could not demote this user. Check my admin rights.", c.lang))
	}
	if _, err := r.store.RemoveAdmin(ctx, c.chat.ID, targetID); err != nil {
		return errors.WithMessage(err, "remove admin")
	}
	r.s.InvalidateAdmins(c.chat.ID)
	return r.replyf(ctx, c, "%s has been demoted.", bot.Mention(target))
}

func (r *Reactor) titleCommand(ctx context.Context, c *commandContext) error {
	if ok, err := r.requireManager(ctx, c); !ok {
		return err
	}
	targetID, target, rest := r.target(c)
	title := truncateTitle(strings.Join(rest, " "))
	if targetID == 0 || title == "" {
		return r.reply(ctx, c, i18n.Get("Usage: /title text, as a reply to an admin.", c.lang))
	}
	if err := r.s.GetPlatform().SetAdminTitle(ctx, c.chat.ID, targetID, title); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Warn("cant set admin title")
		return r.reply(ctx, c, i18n.Get("I could not set the title. The user must be an admin promoted by me.", c.lang))
	}
	return r.replyf(ctx, c, "Title of %s is now %s.", bot.Mention(target), bot.EscapeHTML(title))
}

func truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return title
}
