package bot

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iamwavecut/ngguard/internal/i18n"
	"github.com/iamwavecut/ngguard/internal/observability"
)

const (
	UpdateTimeout = 5 * time.Minute
)

type namedHandler struct {
	name    string
	handler Handler
}

type UpdateProcessor struct {
	s              Service
	updateHandlers []namedHandler
	logger         *log.Entry
}

func NewUpdateProcessor(s Service) *UpdateProcessor {
	return &UpdateProcessor{
		s:      s,
		logger: log.WithField("object", "UpdateProcessor"),
	}
}

// Register appends a handler to the chain; handlers run in registration order.
func (up *UpdateProcessor) Register(name string, handler Handler) {
	if handler == nil {
		up.logger.Warnf("no handler for %s", name)
		return
	}
	up.updateHandlers = append(up.updateHandlers, namedHandler{name: name, handler: handler})
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) (err error) {
	if u == nil {
		return errors.New("update is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	updateTime := time.Now()
	switch {
	case u.Message != nil:
		updateTime = time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		updateTime = time.Unix(int64(u.EditedMessage.Date), 0)
	}
	if time.Since(updateTime) > UpdateTimeout {
		up.logger.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         time.Since(updateTime).String(),
		}).Debug("skipping outdated update")
		return nil
	}

	chat, user := resolveChatAndUser(u)

	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "update.process")
	defer span.End()
	span.SetAttributes(attribute.Int("update.id", u.UpdateID))
	if chat != nil {
		span.SetAttributes(attribute.Int64("chat.id", chat.ID))
	}

	finish := observability.StartUpdate()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			finish("error")
			return
		}
		finish("ok")
	}()

	for _, h := range up.updateHandlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		proceed, err := h.handler.Handle(ctx, u, chat, user)
		if err != nil {
			up.notifyFailure(ctx, u, chat, user)
			return errors.WithMessagef(err, "handler %s", h.name)
		}
		if !proceed {
			up.logger.WithField("handler", h.name).Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// notifyFailure is the best-effort user notice of the outermost error boundary.
func (up *UpdateProcessor) notifyFailure(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) {
	if u.Message == nil || chat == nil || !u.Message.IsCommand() {
		return
	}
	lang := up.s.GetLanguage(ctx, chat.ID, user)
	msg := api.NewMessage(chat.ID, i18n.Get("An error occurred while processing your request.", lang))
	msg.ReplyParameters.MessageID = u.Message.MessageID
	if _, err := up.s.GetPlatform().Send(ctx, msg); err != nil {
		up.logger.WithField("error", err.Error()).Debug("cant send failure notice")
	}
}

func resolveChatAndUser(u *api.Update) (*api.Chat, *api.User) {
	chat := u.FromChat()
	if chat == nil {
		switch {
		case u.ChatJoinRequest != nil:
			chat = &u.ChatJoinRequest.Chat
		case u.MyChatMember != nil:
			chat = &u.MyChatMember.Chat
		case u.ChatMember != nil:
			chat = &u.ChatMember.Chat
		}
	}

	user := u.SentFrom()
	if user == nil {
		switch {
		case u.ChatJoinRequest != nil:
			user = &u.ChatJoinRequest.From
		case u.MyChatMember != nil:
			user = &u.MyChatMember.From
		case u.ChatMember != nil:
			user = &u.ChatMember.From
		}
	}
	return chat, user
}

func GetUpdatesChans(ctx context.Context, bot *api.BotAPI, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, bot.Buffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			if err := ctx.Err(); err != nil {
				chErr <- err
				return
			}
			updates, err := bot.GetUpdates(config)
			if err != nil {
				chErr <- err
				return
			}

			for _, update := range updates {
				if update.UpdateID < config.Offset {
					continue
				}
				config.Offset = update.UpdateID + 1
				select {
				case ch <- update:
				case <-ctx.Done():
					chErr <- ctx.Err()
					return
				}
			}
		}
	}()

	return ch, chErr
}
