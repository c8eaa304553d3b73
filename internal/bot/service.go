package bot

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	adminCacheSize = 1024
	adminCacheTTL  = 10 * time.Minute
)

// Defaults seed settings of chats seen for the first time.
type Defaults struct {
	Language       string
	SuperAdminID   int64
	MaxWarnings    int
	CaptchaTimeout time.Duration
	ReportCooldown time.Duration
}

type service struct {
	platform Platform
	db       db.Client
	defaults Defaults
	admins   *expirable.LRU[int64, map[int64]struct{}]
	logger   *log.Entry
}

func NewService(platform Platform, dbClient db.Client, defaults Defaults, logger *log.Entry) *service {
	return &service{
		platform: platform,
		db:       dbClient,
		defaults: defaults,
		admins:   expirable.NewLRU[int64, map[int64]struct{}](adminCacheSize, nil, adminCacheTTL),
		logger:   logger,
	}
}

func (s *service) GetPlatform() Platform {
	return s.platform
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetSettings returns stored settings, persisting configured defaults for unknown chats.
func (s *service) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	settings, err := s.db.GetSettings(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	settings = db.DefaultSettings(chatID)
	if s.defaults.Language != "" {
		settings.Language = s.defaults.Language
	}
	if s.defaults.MaxWarnings > 0 {
		settings.MaxWarnings = s.defaults.MaxWarnings
	}
	if s.defaults.CaptchaTimeout > 0 {
		settings.CaptchaTimeout = int64(s.defaults.CaptchaTimeout / time.Second)
	}
	if s.defaults.ReportCooldown >= 0 {
		settings.ReportCooldown = int64(s.defaults.ReportCooldown / time.Second)
	}
	if err := s.db.SetSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("persist default settings: %w", err)
	}
	return settings, nil
}

func (s *service) SetSettings(ctx context.Context, settings *db.Settings) error {
	return s.db.SetSettings(ctx, settings)
}

func (s *service) GetLanguage(ctx context.Context, chatID int64, user *api.User) string {
	if settings, err := s.db.GetSettings(ctx, chatID); err == nil && settings != nil && settings.Language != "" {
		return settings.Language
	}
	if user != nil && tool.In(user.LanguageCode, i18n.GetLanguagesList()...) {
		return user.LanguageCode
	}
	if s.defaults.Language != "" {
		return s.defaults.Language
	}
	return db.DefaultLanguage
}

func (s *service) IsSuperAdmin(userID int64) bool {
	return s.defaults.SuperAdminID != 0 && userID == s.defaults.SuperAdminID
}

// IsAdmin checks the super admin, registered bot admins and the chat's live administrators.
func (s *service) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if s.IsSuperAdmin(userID) {
		return true, nil
	}
	ok, err := s.db.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	admins, cached := s.admins.Get(chatID)
	if !cached {
		ids, err := s.platform.GetChatAdministrators(ctx, chatID)
		if err != nil {
			s.logger.WithFields(log.Fields{
				"chat_id": chatID,
				"error":   err.Error(),
			}).Warn("cant fetch chat administrators")
			return false, nil
		}
		admins = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			admins[id] = struct{}{}
		}
		s.admins.Add(chatID, admins)
	}
	_, ok = admins[userID]
	return ok, nil
}

func (s *service) InvalidateAdmins(chatID int64) {
	s.admins.Remove(chatID)
}
