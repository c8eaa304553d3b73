package moderation

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/bot/bottest"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
)

const (
	testChat       int64 = -1001
	testSuperAdmin int64 = 1
	testChatAdmin  int64 = 2
	testUser       int64 = 100
	testOtherUser  int64 = 101
)

type testEnv struct {
	s        bot.Service
	platform *bottest.Platform
	store    db.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	client, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	platform := bottest.NewPlatform()
	platform.Admins[testChat] = []int64{testChatAdmin}
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	s := bot.NewService(platform, client, bot.Defaults{SuperAdminID: testSuperAdmin}, log.NewEntry(logger))
	return &testEnv{s: s, platform: platform, store: client}
}

func (e *testEnv) settings(t *testing.T, mutate func(*db.Settings)) {
	t.Helper()
	ctx := context.Background()
	settings, err := e.s.GetSettings(ctx, testChat)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	mutate(settings)
	if err := e.s.SetSettings(ctx, settings); err != nil {
		t.Fatalf("set settings: %v", err)
	}
}
