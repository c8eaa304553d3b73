package bot_test

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/bot/bottest"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
)

func newService(t *testing.T, defaults bot.Defaults) (bot.Service, *bottest.Platform, db.Client) {
	t.Helper()
	dbClient, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = dbClient.Close() })

	platform := bottest.NewPlatform()
	return bot.NewService(platform, dbClient, defaults, log.NewEntry(log.New())), platform, dbClient
}

func TestServiceGetSettingsCreatesDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _, dbClient := newService(t, bot.Defaults{
		MaxWarnings:    4,
		CaptchaTimeout: 2 * time.Minute,
		ReportCooldown: time.Minute,
	})

	settings, err := service.GetSettings(ctx, -1001234567890)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings == nil {
		t.Fatalf("settings is nil")
	}
	if settings.Language != db.DefaultLanguage {
		t.Fatalf("unexpected language: got %q", settings.Language)
	}
	if settings.MaxWarnings != 4 || settings.GetCaptchaTimeout() != 2*time.Minute || settings.GetReportCooldown() != time.Minute {
		t.Fatalf("configured defaults not applied: %+v", settings)
	}

	stored, err := dbClient.GetSettings(ctx, -1001234567890)
	if err != nil || stored == nil {
		t.Fatalf("defaults were not persisted: %v", err)
	}
}

func TestServiceIsAdmin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, platform, dbClient := newService(t, bot.Defaults{SuperAdminID: 1})
	platform.Admins[-1] = []int64{2}
	if err := dbClient.AddAdmin(ctx, &db.Admin{ChatID: -1, UserID: 3}); err != nil {
		t.Fatalf("add admin: %v", err)
	}

	tests := []struct {
		name   string
		userID int64
		want   bool
	}{
		{name: "super admin", userID: 1, want: true},
		{name: "chat administrator", userID: 2, want: true},
		{name: "registered admin", userID: 3, want: true},
		{name: "member", userID: 4, want: false},
	}
	for _, tt := range tests {
		got, err := service.IsAdmin(ctx, -1, tt.userID)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %v want %v", tt.name, got, tt.want)
		}
	}

	if n := platform.Count("GetChatAdministrators"); n != 1 {
		t.Fatalf("administrators should be cached, fetched %d times", n)
	}
	service.InvalidateAdmins(-1)
	if _, err := service.IsAdmin(ctx, -1, 4); err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if n := platform.Count("GetChatAdministrators"); n != 2 {
		t.Fatalf("invalidate should force a refetch, fetched %d times", n)
	}
}
