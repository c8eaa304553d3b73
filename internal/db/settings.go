package db

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultLanguage       = "en"
	DefaultTimezone       = "UTC"
	DefaultNightStart     = "22:00"
	DefaultNightEnd       = "06:00"
	DefaultSlowModeDelay  = 30 * time.Second
	DefaultCaptchaTimeout = 5 * time.Minute
	DefaultReportCooldown = 5 * time.Minute
	DefaultMaxWarnings    = 3
)

// Settings is the persisted per-chat moderation configuration.
type Settings struct {
	ID                 int64  `db:"id"`
	Title              string `db:"title"`
	Language           string `db:"language"`
	Timezone           string `db:"timezone"`
	NightModeEnabled   bool   `db:"night_mode_enabled"`
	NightModeStart     string `db:"night_mode_start"`
	NightModeEnd       string `db:"night_mode_end"`
	SlowModeEnabled    bool   `db:"slow_mode_enabled"`
	SlowModeDelay      int64  `db:"slow_mode_delay"`
	AutoDeleteCommands bool   `db:"auto_delete_commands"`
	Silenced           bool   `db:"silenced"`
	UnderAttack        bool   `db:"under_attack"`
	AntispamEnabled    bool   `db:"antispam_enabled"`
	CaptchaEnabled     bool   `db:"captcha_enabled"`
	CaptchaTimeout     int64  `db:"captcha_timeout"`
	WelcomeEnabled     bool   `db:"welcome_enabled"`
	WelcomeMessage     string `db:"welcome_message"`
	WelcomeDeleteAfter int64  `db:"welcome_delete_after"`
	GoodbyeEnabled     bool   `db:"goodbye_enabled"`
	GoodbyeMessage     string `db:"goodbye_message"`
	ReportsEnabled     bool   `db:"reports_enabled"`
	ReportCooldown     int64  `db:"report_cooldown"`
	MaxWarnings        int    `db:"max_warnings"`
}

func DefaultSettings(chatID int64) *Settings {
	return &Settings{
		ID:              chatID,
		Language:        DefaultLanguage,
		Timezone:        DefaultTimezone,
		NightModeStart:  DefaultNightStart,
		NightModeEnd:    DefaultNightEnd,
		SlowModeDelay:   int64(DefaultSlowModeDelay / time.Second),
		AntispamEnabled: true,
		CaptchaEnabled:  true,
		CaptchaTimeout:  int64(DefaultCaptchaTimeout / time.Second),
		WelcomeEnabled:  true,
		ReportsEnabled:  true,
		ReportCooldown:  int64(DefaultReportCooldown / time.Second),
		MaxWarnings:     DefaultMaxWarnings,
	}
}

func (s *Settings) GetCaptchaTimeout() time.Duration {
	if s.CaptchaTimeout <= 0 {
		return DefaultCaptchaTimeout
	}
	return time.Duration(s.CaptchaTimeout) * time.Second
}

func (s *Settings) GetSlowModeDelay() time.Duration {
	if s.SlowModeDelay <= 0 {
		return DefaultSlowModeDelay
	}
	return time.Duration(s.SlowModeDelay) * time.Second
}

func (s *Settings) GetReportCooldown() time.Duration {
	if s.ReportCooldown < 0 {
		return 0
	}
	return time.Duration(s.ReportCooldown) * time.Second
}

func (s *Settings) GetMaxWarnings() int {
	if s.MaxWarnings <= 0 {
		return DefaultMaxWarnings
	}
	return s.MaxWarnings
}

func (s *Settings) GetLocation() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return time.UTC
	}
	return loc
}

func (s *Settings) GetLanguage() string {
	if s.Language == "" {
		return DefaultLanguage
	}
	return s.Language
}
