package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
	"github.com/iamwavecut/ngguard/internal/flood"
	"github.com/iamwavecut/ngguard/internal/handlers/admin"
	"github.com/iamwavecut/ngguard/internal/handlers/chat"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/infra"
	"github.com/iamwavecut/ngguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/ngguard/internal/lifecycle"
	"github.com/iamwavecut/ngguard/internal/observability"
	"github.com/iamwavecut/ngguard/internal/scheduler"
)

const (
	floodSweepInterval = 5 * time.Minute
	shutdownTimeout    = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithField("error", err.Error()).Fatal("bot stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	entry := log.WithField("object", "main")

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return err
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	entry.WithField("bot", botAPI.Self.UserName).Info("authorized")

	store, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, "bot.db")
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	platform := telegram.NewOperations(botAPI, telegram.Options{
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		Burst:             cfg.Platform.Burst,
		BreakerFailures:   cfg.Platform.BreakerFailures,
		BreakerTimeout:    cfg.Platform.BreakerTimeout,
	})
	service := bot.NewService(platform, store, bot.Defaults{
		Language:       cfg.DefaultLanguage,
		SuperAdminID:   cfg.SuperAdminID,
		MaxWarnings:    cfg.Moderation.MaxWarnings,
		CaptchaTimeout: cfg.Moderation.CaptchaTimeout,
		ReportCooldown: cfg.Moderation.ReportCooldown,
	}, log.WithField("object", "Service"))

	sched, err := scheduler.New(log.WithField("object", "Scheduler"))
	if err != nil {
		return err
	}
	penalties := moderation.NewPenaltyExecutor(service, cfg.Moderation.MuteDuration)
	tracker := flood.NewTracker(flood.Policy{
		Limit:        cfg.Moderation.FloodLimit,
		Window:       cfg.Moderation.FloodWindow,
		Action:       db.ActionMute,
		MuteDuration: cfg.Moderation.FloodMute,
	})

	gatekeeper := chat.NewGatekeeper(service, sched, penalties)
	reactor := chat.NewReactor(service, sched, tracker, penalties)

	runtime := lifecycle.NewRuntime(log.WithField("object", "Runtime"))
	runtime.Register("metrics", observability.NewServer(cfg.MetricsAddr))
	runtime.Register("scheduler", sched)
	runtime.Register("gatekeeper", gatekeeper)
	var spammers admin.SpammerChecker
	if cfg.Banlist.Enabled {
		sources := moderation.DefaultBanlistSources()
		if !cfg.Banlist.Lookup {
			sources.AccountURL = ""
		}
		banlist := moderation.NewBanlist(store, sched, sources)
		runtime.Register("banlist", banlist)
		spammers = banlist
	}
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := runtime.Stop(stopCtx); err != nil {
			entry.WithField("error", err.Error()).Warn("unclean shutdown")
		}
	}()
	if err := sched.Every("flood-sweep", floodSweepInterval, reactor.Sweep); err != nil {
		return err
	}

	processor := bot.NewUpdateProcessor(service)
	processor.Register("admin", admin.NewAdmin(service, penalties, spammers))
	processor.Register("gatekeeper", gatekeeper)
	processor.Register("reactor", reactor)

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "my_chat_member", "chat_member"}

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go infra.GoRecoverable(pollCtx, -1, "process_updates", func(ctx context.Context) {
		defer cancelPoll()
		updates, errs := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
		for {
			select {
			case err, ok := <-errs:
				if ok && ctx.Err() == nil {
					entry.WithField("error", err.Error()).Error("bot api get updates error")
				}
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if err := processor.Process(ctx, &update); err != nil {
					entry.WithField("error", err.Error()).Error("cant process update")
				}
			}
		}
	})

	monitor := infra.MonitorExecutable(ctx)
	for {
		select {
		case <-pollCtx.Done():
			entry.Info("no more updates")
			return nil
		case _, ok := <-monitor:
			if ok {
				entry.Warn("executable file was modified, restarting")
				return nil
			}
			monitor = nil
		}
	}
}
