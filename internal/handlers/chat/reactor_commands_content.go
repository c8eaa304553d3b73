package chat

import (
	"context"
	"regexp"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

var contentNamePattern = regexp.MustCompile(`^[a-z0-9_\-]{1,32}$`)

func (r *Reactor) contentCommands() map[string]command {
	return map[string]command{
		"save":  {scope: scopeAdmin, run: r.saveNoteCommand},
		"get":   {scope: scopeGroup, run: r.getNoteCommand},
		"clear": {scope: scopeAdmin, run: r.clearNoteCommand},
		"notes": {scope: scopeGroup, run: r.listNotesCommand},

		"setrules":   {scope: scopeAdmin, run: r.setRulesCommand},
		"rules":      {scope: scopeGroup, run: r.rulesCommand},
		"clearrules": {scope: scopeAdmin, run: r.clearRulesCommand},

		"addcmd": {scope: scopeAdmin, run: r.addCustomCommand},
		"delcmd": {scope: scopeAdmin, run: r.delCustomCommand},
		"cmds":   {scope: scopeGroup, run: r.listCustomCommands},
	}
}

// nameAndBody splits "name rest of text"; a replied message supplies the body when none is given.
func nameAndBody(c *commandContext) (string, string) {
	if len(c.args) == 0 {
		return "", ""
	}
	name := strings.ToLower(strings.TrimPrefix(c.args[0], "#"))
	body := strings.TrimSpace(strings.TrimPrefix(c.rawArgs, c.args[0]))
	if body == "" && c.msg.ReplyToMessage != nil && !isTopicReply(c.msg) {
		body = bot.MessageText(c.msg.ReplyToMessage)
	}
	return name, body
}

func (r *Reactor) saveNoteCommand(ctx context.Context, c *commandContext) error {
	name, body := nameAndBody(c)
	if !contentNamePattern.MatchString(name) || body == "" {
		return r.reply(ctx, c, i18n.Get("Usage: /save name text", c.lang))
	}
	err := r.store.SaveNote(ctx, &db.Note{
		ChatID:    c.chat.ID,
		Name:      name,
		Content:   body,
		CreatedBy: c.user.ID,
	})
	if err != nil {
		return errors.WithMessage(err, "save note")
	}
	return r.replyf(ctx, c, "Note #%s saved.", name)
}

func (r *Reactor) getNoteCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) == 0 {
		return r.reply(ctx, c, i18n.Get("Usage: /get name", c.lang))
	}
	name := strings.ToLower(strings.TrimPrefix(c.args[0], "#"))
	note, err := r.store.GetNote(ctx, c.chat.ID, name)
	if err != nil {
		return errors.WithMessage(err, "get note")
	}
	if note == nil {
		return r.replyf(ctx, c, "Note #%s not found.", bot.EscapeHTML(name))
	}
	return r.reply(ctx, c, bot.EscapeHTML(note.Content))
}

func (r *Reactor) clearNoteCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) == 0 {
		return r.reply(ctx, c, i18n.Get("Usage: /clear name", c.lang))
	}
	name := strings.ToLower(strings.TrimPrefix(c.args[0], "#"))
	removed, err := r.store.DeleteNote(ctx, c.chat.ID, name)
	if err != nil {
		return errors.WithMessage(err, "delete note")
	}
	if !removed {
		return r.replyf(ctx, c, "Note #%s not found.", bot.EscapeHTML(name))
	}
	return r.replyf(ctx, c, "Note #%s deleted.", name)
}

func (r *Reactor) listNotesCommand(ctx context.Context, c *commandContext) error {
	names, err := r.store.ListNotes(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list notes")
	}
	if len(names) == 0 {
		return r.reply(ctx, c, i18n.Get("There are no notes in this chat.", c.lang))
	}
	for i, name := range names {
		names[i] = "#" + name
	}
	return r.reply(ctx, c, i18n.Get("Notes:", c.lang)+"\n"+strings.Join(names, "\n"))
}

// noteShortcut answers a message that is just "#name" with the saved note.
func (r *Reactor) noteShortcut(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "#") || strings.ContainsAny(text, " \n") {
		return nil
	}
	name := strings.ToLower(text[1:])
	if !contentNamePattern.MatchString(name) {
		return nil
	}
	note, err := r.store.GetNote(ctx, chat.ID, name)
	if err != nil {
		return errors.WithMessage(err, "get note")
	}
	if note == nil {
		return nil
	}
	c := &commandContext{msg: msg, chat: chat, user: user}
	return r.reply(ctx, c, bot.EscapeHTML(note.Content))
}

func (r *Reactor) setRulesCommand(ctx context.Context, c *commandContext) error {
	body := c.rawArgs
	if body == "" && c.msg.ReplyToMessage != nil && !isTopicReply(c.msg) {
		body = bot.MessageText(c.msg.ReplyToMessage)
	}
	if body == "" {
		return r.reply(ctx, c, i18n.Get("Usage: /setrules text", c.lang))
	}
	if err := r.store.SetRules(ctx, &db.Rules{ChatID: c.chat.ID, Content: body, UpdatedBy: c.user.ID}); err != nil {
		return errors.WithMessage(err, "set rules")
	}
	return r.reply(ctx, c, i18n.Get("Rules updated.", c.lang))
}

func (r *Reactor) rulesCommand(ctx context.Context, c *commandContext) error {
	rules, err := r.store.GetRules(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "get rules")
	}
	if rules == nil {
		return r.reply(ctx, c, i18n.Get("This chat has no rules yet.", c.lang))
	}
	return r.reply(ctx, c, "<b>"+i18n.Get("Rules", c.lang)+"</b>\n"+bot.EscapeHTML(rules.Content))
}

func (r *Reactor) clearRulesCommand(ctx context.Context, c *commandContext) error {
	removed, err := r.store.DeleteRules(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "delete rules")
	}
	if !removed {
		return r.reply(ctx, c, i18n.Get("This chat has no rules yet.", c.lang))
	}
	return r.reply(ctx, c, i18n.Get("Rules cleared.", c.lang))
}

func (r *Reactor) addCustomCommand(ctx context.Context, c *commandContext) error {
	name, body := nameAndBody(c)
	name = strings.TrimPrefix(name, "/")
	if !contentNamePattern.MatchString(name) || body == "" {
		return r.reply(ctx, c, i18n.Get("Usage: /addcmd name response", c.lang))
	}
	if _, builtin := r.commands[name]; builtin {
		return r.replyf(ctx, c, "/%s is a built-in command.", name)
	}
	err := r.store.SaveCommand(ctx, &db.CustomCommand{
		ChatID:    c.chat.ID,
		Command:   name,
		Response:  body,
		CreatedBy: c.user.ID,
	})
	if err != nil {
		return errors.WithMessage(err, "save command")
	}
	return r.replyf(ctx, c, "Command /%s saved.", name)
}

func (r *Reactor) delCustomCommand(ctx context.Context, c *commandContext) error {
	if len(c.args) == 0 {
		return r.reply(ctx, c, i18n.Get("Usage: /delcmd name", c.lang))
	}
	name := strings.ToLower(strings.TrimPrefix(c.args[0], "/"))
	removed, err := r.store.DeleteCommand(ctx, c.chat.ID, name)
	if err != nil {
		return errors.WithMessage(err, "delete command")
	}
	if !removed {
		return r.replyf(ctx, c, "Command /%s not found.", bot.EscapeHTML(name))
	}
	return r.replyf(ctx, c, "Command /%s deleted.", name)
}

func (r *Reactor) listCustomCommands(ctx context.Context, c *commandContext) error {
	names, err := r.store.ListCommands(ctx, c.chat.ID)
	if err != nil {
		return errors.WithMessage(err, "list commands")
	}
	if len(names) == 0 {
		return r.reply(ctx, c, i18n.Get("There are no custom commands in this chat.", c.lang))
	}
	for i, name := range names {
		names[i] = "/" + name
	}
	return r.reply(ctx, c, i18n.Get("Custom commands:", c.lang)+"\n"+strings.Join(names, "\n"))
}

// customCommand answers an unknown command with the chat's stored response, if any.
func (r *Reactor) customCommand(ctx context.Context, c *commandContext) error {
	if !(c.chat.IsGroup() || c.chat.IsSuperGroup()) || !contentNamePattern.MatchString(c.name) {
		return nil
	}
	cmd, err := r.store.GetCommand(ctx, c.chat.ID, c.name)
	if err != nil {
		return errors.WithMessage(err, "get command")
	}
	if cmd == nil {
		return nil
	}
	return r.reply(ctx, c, bot.EscapeHTML(cmd.Response))
}
