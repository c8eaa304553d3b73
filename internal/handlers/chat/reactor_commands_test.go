package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
)

const otherChat int64 = -2002

func TestGlobalWhitelistLifecycle(t *testing.T) {
	t.Parallel()
	r, env := newTestReactor(t)
	ctx := context.Background()

	whitelisted := func() bool {
		t.Helper()
		ok, err := env.store.IsWhitelisted(ctx, otherChat, testUser)
		if err != nil {
			t.Fatalf("is whitelisted: %v", err)
		}
		return ok
	}

	handle(t, r, commandUpdate(testSuperAdmin, "/gwhitelist 100"))
	if !whitelisted() {
		t.Fatal("global whitelist must apply to other chats")
	}

	handle(t, r, commandUpdate(testChatAdmin, "/unwhitelist 100"))
	if n := textsContaining(env, testChat, "is not whitelisted."); n != 1 || !whitelisted() {
		t.Fatalf("local removal must leave the global entry, got %v", env.platform.Texts(testChat))
	}

	handle(t, r, commandUpdate(testChatAdmin, "/whitelisted"))
	if n := textsContaining(env, testChat, "Whitelisted users:"); n != 1 {
		t.Fatalf("expected whitelist listing, got %v", env.platform.Texts(testChat))
	}
	handle(t, r, commandUpdate(testChatAdmin, "/checkwhitelist 100"))
	if n := textsContaining(env, testChat, "is whitelisted in all chats."); n != 1 {
		t.Fatalf("expected global status, got %v", env.platform.Texts(testChat))
	}

	handle(t, r, commandUpdate(testChatAdmin, "/gunwhitelist 100"))
	if !whitelisted() {
		t.Fatal("chat admins must not lift global entries")
	}

	handle(t, r, commandUpdate(testSuperAdmin, "/gunwhitelist 100"))
	if whitelisted() {
		t.Fatal("global entry must be removed")
	}
	if n := textsContaining(env, testChat, "is no longer whitelisted in all chats."); n != 1 {
		t.Fatalf("expected removal notice, got %v", env.platform.Texts(testChat))
	}

	handle(t, r, commandUpdate(testChatAdmin, "/whitelisted"))
	if n := textsContaining(env, testChat, "No whitelisted users found."); n != 1 {
		t.Fatalf("expected empty listing, got %v", env.platform.Texts(testChat))
	}
}

func TestGlobalKickHitsEveryKnownChat(t *testing.T) {
	t.Parallel()
	r, env := newTestReactor(t)
	ctx := context.Background()
	if err := env.store.SetSettings(ctx, db.DefaultSettings(otherChat)); err != nil {
		t.Fatalf("set settings: %v", err)
	}

	handle(t, r, commandUpdate(testChatAdmin, "/gkick 100"))
	if n := env.platform.Count("BanMember"); n != 0 {
		t.Fatalf("chat admins must not kick globally, got %s", env.platform)
	}

	handle(t, r, commandUpdate(testSuperAdmin, "/gkick 100"))
	kicked := map[int64]bool{}
	for _, c := range env.platform.Calls("BanMember") {
		if c.UserID != testUser {
			t.Fatalf("unexpected ban target %d", c.UserID)
		}
		kicked[c.ChatID] = true
	}
	if len(kicked) != 2 || !kicked[testChat] || !kicked[otherChat] {
		t.Fatalf("expected kicks in both chats, got %s", env.platform)
	}
	if n := env.platform.Count("UnbanMember"); n != 2 {
		t.Fatalf("kick must unban afterwards, got %d", n)
	}
	banned, err := env.store.IsBanned(ctx, otherChat, testUser, time.Now())
	if err != nil || banned {
		t.Fatalf("global kick must not record a ban: %t %v", banned, err)
	}
	if n := textsContaining(env, testChat, "has been kicked from 2 chats."); n != 1 {
		t.Fatalf("expected summary, got %v", env.platform.Texts(testChat))
	}
}

func TestSilentGlobalBan(t *testing.T) {
	t.Parallel()
	r, env := newTestReactor(t)

	cmd := commandUpdate(testSuperAdmin, "/sgban 100 spam")
	handle(t, r, cmd)

	if n := env.platform.Count("Send"); n != 0 {
		t.Fatalf("silent global ban must not send, got %v", env.platform.Texts(testChat))
	}
	if !deletedIDs(env)[cmd.Message.MessageID] {
		t.Fatal("silent command must delete itself")
	}
	banned, err := env.store.IsBanned(context.Background(), otherChat, testUser, time.Now())
	if err != nil || !banned {
		t.Fatalf("expected a global ban record, got %t %v", banned, err)
	}
}

func TestMuteRejectsOutOfRangeDuration(t *testing.T) {
	t.Parallel()
	r, env := newTestReactor(t)

	handle(t, r, commandUpdate(testChatAdmin, "/mute 100 9999999999999d"))
	if n := env.platform.Count("RestrictMember"); n != 0 {
		t.Fatalf("mute must not apply, got %s", env.platform)
	}
	if n := textsContaining(env, testChat, "Invalid duration."); n != 1 {
		t.Fatalf("expected duration error, got %v", env.platform.Texts(testChat))
	}
	muted, err := env.store.IsMuted(context.Background(), testChat, testUser, time.Now())
	if err != nil || muted {
		t.Fatalf("no mute must be recorded: %t %v", muted, err)
	}
}

func TestReportShowsPlatformRefusal(t *testing.T) {
	t.Parallel()
	r, env := newTestReactor(t)
	ctx := context.Background()
	if err := env.store.AddAdmin(ctx, &db.Admin{ChatID: testChat, UserID: testChatAdmin, AddedBy: testSuperAdmin}); err != nil {
		t.Fatalf("add admin: %v", err)
	}

	offender := messageUpdate(testOtherUser, "rude words", time.Now())
	handle(t, r, offender)
	handle(t, r, replyTo(commandUpdate(testUser, "/report rude"), offender))
	pending, err := env.store.ListPendingReports(ctx, testChat)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending report, got %v %v", pending, err)
	}

	env.platform.Fail["BanMember"] = errors.New("not enough rights")
	handle(t, r, reportCallback(testChatAdmin, reportCallbackData(moderation.ReportBan, pending[0].ID)))

	edits := env.platform.Calls("EditMessageText")
	if len(edits) == 0 {
		t.Fatal("expected the report message to be edited")
	}
	if text := edits[len(edits)-1].Text; !strings.Contains(text, "Telegram refused") {
		t.Fatalf("expected refusal notice, got %q", text)
	}
}

func TestProcessingResultsAreScopedByChat(t *testing.T) {
	t.Parallel()
	r, _ := newTestReactor(t)

	msg := messageUpdate(testUser, "hello", time.Now())
	handle(t, r, msg)
	if r.GetLastProcessingResult(testChat, msg.Message.MessageID) == nil {
		t.Fatal("expected a result for the processed message")
	}
	if r.GetLastProcessingResult(otherChat, msg.Message.MessageID) != nil {
		t.Fatal("same message id in another chat must not resolve")
	}

	local := &MessageProcessingResult{Stage: StageFilters}
	foreign := &MessageProcessingResult{Stage: StageFlood}
	r.storeLastResult(testChat, 42, local)
	r.storeLastResult(otherChat, 42, foreign)
	if got := r.GetLastProcessingResult(testChat, 42); got != local {
		t.Fatalf("expected the local result, got %+v", got)
	}
	if got := r.GetLastProcessingResult(otherChat, 42); got != foreign {
		t.Fatalf("expected the foreign result, got %+v", got)
	}
}
