package bot

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/db"
)

// Platform is the subset of the Telegram Bot API the moderation core relies on.
type Platform interface {
	Send(ctx context.Context, c api.Chattable) (api.Message, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	RestrictMember(ctx context.Context, chatID, userID int64, until time.Time) error
	UnrestrictMember(ctx context.Context, chatID, userID int64) error
	BanMember(ctx context.Context, chatID, userID int64, until time.Time) error
	UnbanMember(ctx context.Context, chatID, userID int64) error
	PromoteMember(ctx context.Context, chatID, userID int64, promote bool) error
	SetAdminTitle(ctx context.Context, chatID, userID int64, title string) error
	GetChatMember(ctx context.Context, chatID, userID int64) (*api.ChatMember, error)
	GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
	GetMemberCount(ctx context.Context, chatID int64) (int, error)
}

// Service defines the core bot service interface
type Service interface {
	GetPlatform() Platform
	GetDB() db.Client
	GetSettings(ctx context.Context, chatID int64) (*db.Settings, error)
	SetSettings(ctx context.Context, settings *db.Settings) error
	GetLanguage(ctx context.Context, chatID int64, user *api.User) string
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	IsSuperAdmin(userID int64) bool
	InvalidateAdmins(chatID int64)
}

// Handler defines the interface for all update handlers in the system
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}
