package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required" validate:"required"`
		DefaultLanguage  string `env:"LANG,default=en" validate:"required,len=2"`
		LogLevel         int    `env:"LOG_LEVEL,default=4" validate:"gte=0,lte=6"`
		DotPath          string `env:"DOT_PATH,default=~/.ngguard" validate:"required"`
		SuperAdminID     int64  `env:"SUPER_ADMIN_ID"`
		MetricsAddr      string `env:"METRICS_ADDR,default=:2112"`
		Moderation       Moderation
		Platform         Platform
		Banlist          Banlist
	}

	Moderation struct {
		FloodLimit     int           `env:"FLOOD_LIMIT,default=5" validate:"gt=0"`
		FloodWindow    time.Duration `env:"FLOOD_WINDOW,default=10s" validate:"gt=0"`
		FloodMute      time.Duration `env:"FLOOD_MUTE,default=1h" validate:"gt=0"`
		MaxWarnings    int           `env:"MAX_WARNINGS,default=3" validate:"gt=0"`
		MuteDuration   time.Duration `env:"MUTE_DURATION,default=1h" validate:"gt=0"`
		CaptchaTimeout time.Duration `env:"CAPTCHA_TIMEOUT,default=5m" validate:"gte=30s,lte=1h"`
		ReportCooldown time.Duration `env:"REPORT_COOLDOWN,default=5m" validate:"gte=0,lte=1h"`
	}

	Banlist struct {
		Enabled bool `env:"BANLIST_ENABLED,default=true"`
		Lookup  bool `env:"BANLIST_LOOKUP,default=true"`
	}

	Platform struct {
		RequestsPerSecond float64       `env:"API_RPS,default=25" validate:"gt=0"`
		Burst             int           `env:"API_BURST,default=5" validate:"gt=0"`
		BreakerFailures   uint32        `env:"BREAKER_FAILURES,default=5" validate:"gt=0"`
		BreakerTimeout    time.Duration `env:"BREAKER_TIMEOUT,default=30s" validate:"gt=0"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg, err := Process(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

// Process reads NG_-prefixed variables from the lookuper and validates the result.
func Process(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	return cfg, nil
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
