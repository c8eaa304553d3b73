package admin

import (
	"context"
	"strings"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/bot/bottest"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
)

const (
	testChat      int64 = -1001
	testOwner     int64 = 1
	testChatAdmin int64 = 2
	testUser      int64 = 100
)

type testEnv struct {
	a        *Admin
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
	s := bot.NewService(platform, client, bot.Defaults{SuperAdminID: testOwner}, log.NewEntry(logger))
	return &testEnv{
		a:        NewAdmin(s, moderation.NewPenaltyExecutor(s, 0), nil),
		s:        s,
		platform: platform,
		store:    client,
	}
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

func group() *api.Chat {
	return &api.Chat{ID: testChat, Type: "supergroup", Title: "Test group"}
}

func handle(t *testing.T, a *Admin, u *api.Update, from *api.User) bool {
	t.Helper()
	proceed, err := a.Handle(context.Background(), u, group(), from)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return proceed
}

func joinUpdate(members ...int64) *api.Update {
	msg := &api.Message{MessageID: 10, Chat: *group(), Date: int(time.Now().Unix())}
	for _, id := range members {
		msg.NewChatMembers = append(msg.NewChatMembers, api.User{ID: id, FirstName: "New"})
	}
	msg.From = &msg.NewChatMembers[0]
	return &api.Update{Message: msg}
}

func memberUpdate(userID int64, oldStatus, newStatus string) *api.ChatMemberUpdated {
	return &api.ChatMemberUpdated{
		Chat:          *group(),
		From:          api.User{ID: testOwner},
		OldChatMember: api.ChatMember{User: &api.User{ID: userID}, Status: oldStatus},
		NewChatMember: api.ChatMember{User: &api.User{ID: userID}, Status: newStatus},
	}
}

func TestUnderAttackKicksJoiners(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.settings(t, func(s *db.Settings) { s.UnderAttack = true })

	u := joinUpdate(testUser, testChatAdmin)
	if handle(t, env.a, u, u.Message.From) {
		t.Fatal("chain must stop under attack")
	}
	bans := env.platform.Calls("BanMember")
	if len(bans) != 1 || bans[0].UserID != testUser {
		t.Fatalf("expected only the member kicked, got %s", env.platform)
	}
	if n := env.platform.Count("UnbanMember"); n != 1 {
		t.Fatalf("kick must lift the ban, got %d unbans", n)
	}
	if n := env.platform.Count("DeleteMessage"); n != 1 {
		t.Fatalf("expected join message deleted, got %d", n)
	}
}

func TestBannedJoinerIsBannedAgain(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, err := env.store.AddRecord(context.Background(), &db.ModerationRecord{
		ChatID:   db.GlobalChatID,
		UserID:   testUser,
		Kind:     db.RecordBan,
		IsGlobal: true,
		Reason:   "spam",
	})
	if err != nil {
		t.Fatalf("add record: %v", err)
	}

	u := joinUpdate(testUser)
	if !handle(t, env.a, u, u.Message.From) {
		t.Fatal("chain must proceed outside of attack mode")
	}
	bans := env.platform.Calls("BanMember")
	if len(bans) != 1 || bans[0].UserID != testUser || !bans[0].Until.IsZero() {
		t.Fatalf("expected a permanent ban, got %s", env.platform)
	}
	if n := env.platform.Count("UnbanMember"); n != 0 {
		t.Fatalf("ban must stick, got %d unbans", n)
	}
}

type fakeSpammers map[int64]bool

func (f fakeSpammers) CheckBan(_ context.Context, userID int64) (bool, error) {
	return f[userID], nil
}

func TestKnownSpammerIsBannedOnJoin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		antispam bool
		wantBans int
	}{
		{"antispam on", true, 1},
		{"antispam off", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.a.spammer = fakeSpammers{testUser: true}
			env.settings(t, func(s *db.Settings) { s.AntispamEnabled = tt.antispam })

			u := joinUpdate(testUser, testUser+1)
			if !handle(t, env.a, u, u.Message.From) {
				t.Fatal("chain must proceed outside of attack mode")
			}
			bans := env.platform.Calls("BanMember")
			if len(bans) != tt.wantBans {
				t.Fatalf("expected %d bans, got %s", tt.wantBans, env.platform)
			}
			if tt.wantBans > 0 && bans[0].UserID != testUser {
				t.Fatalf("wrong user banned: %d", bans[0].UserID)
			}
			banned, err := env.store.IsBanned(context.Background(), testChat, testUser, time.Now())
			if err != nil || banned != tt.antispam {
				t.Fatalf("expected recorded ban %t, got %t %v", tt.antispam, banned, err)
			}
		})
	}
}

func TestDemotionRemovesBotAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.AddAdmin(ctx, &db.Admin{ChatID: testChat, UserID: testUser, AddedBy: testOwner}); err != nil {
		t.Fatalf("add admin: %v", err)
	}

	update := &api.Update{ChatMember: memberUpdate(testUser, "administrator", "member")}
	if handle(t, env.a, update, &update.ChatMember.From) {
		t.Fatal("chat member updates stop the chain")
	}
	isAdmin, err := env.store.IsAdmin(ctx, testChat, testUser)
	if err != nil || isAdmin {
		t.Fatalf("expected admin row removed, got %t %v", isAdmin, err)
	}

	if err := env.store.AddAdmin(ctx, &db.Admin{ChatID: testChat, UserID: testUser, AddedBy: testOwner}); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	update = &api.Update{ChatMember: memberUpdate(testUser, "member", "restricted")}
	handle(t, env.a, update, &update.ChatMember.From)
	if isAdmin, _ := env.store.IsAdmin(ctx, testChat, testUser); !isAdmin {
		t.Fatal("non-admin transitions must not touch admin rows")
	}
}

func TestBotAddedCreatesSettingsAndGreets(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	update := &api.Update{MyChatMember: memberUpdate(999, "left", "member")}
	handle(t, env.a, update, &update.MyChatMember.From)

	settings, err := env.store.GetSettings(context.Background(), testChat)
	if err != nil || settings == nil {
		t.Fatalf("expected settings created, got %v %v", settings, err)
	}
	if settings.Title != "Test group" {
		t.Fatalf("expected title stored, got %q", settings.Title)
	}
	texts := env.platform.Texts(testChat)
	if len(texts) != 1 || !strings.Contains(texts[0], "ready to moderate Test group") {
		t.Fatalf("expected greeting, got %v", texts)
	}

	update = &api.Update{MyChatMember: memberUpdate(999, "member", "kicked")}
	handle(t, env.a, update, &update.MyChatMember.From)
	if n := env.platform.Count("Send"); n != 1 {
		t.Fatalf("removal must not send, got %d", n)
	}
}

func TestGoodbye(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		enabled  bool
		template string
		want     string
	}{
		{"disabled", false, "", ""},
		{"default", true, "", "Goodbye, Leaver!"},
		{"custom", true, "Bye {first} from {chat}", "Bye Leaver from Test group"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.settings(t, func(s *db.Settings) {
				s.GoodbyeEnabled = tt.enabled
				s.GoodbyeMessage = tt.template
			})
			leaver := &api.User{ID: testUser, FirstName: "Leaver"}
			u := &api.Update{Message: &api.Message{
				MessageID:      11,
				Chat:           *group(),
				From:           leaver,
				LeftChatMember: leaver,
			}}
			handle(t, env.a, u, leaver)

			texts := env.platform.Texts(testChat)
			if tt.want == "" {
				if len(texts) != 0 {
					t.Fatalf("expected no goodbye, got %v", texts)
				}
				return
			}
			if len(texts) != 1 || texts[0] != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, texts)
			}
		})
	}
}
