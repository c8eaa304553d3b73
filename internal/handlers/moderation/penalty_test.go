package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func TestThirdWarningBansOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	exec := NewPenaltyExecutor(env.s, 0)

	var last *Outcome
	for i := 1; i <= 3; i++ {
		out, err := exec.Apply(ctx, Penalty{
			ChatID:  testChat,
			UserID:  testUser,
			ActorID: testChatAdmin,
			Action:  db.ActionWarn,
			Reason:  "rude",
		})
		if err != nil {
			t.Fatalf("warn %d: %v", i, err)
		}
		if out.Warnings != i {
			t.Fatalf("warn %d: expected count %d, got %d", i, i, out.Warnings)
		}
		if i < 3 && out.Escalated {
			t.Fatalf("warn %d escalated early", i)
		}
		last = out
	}

	if !last.Escalated || last.Action != db.ActionBan {
		t.Fatalf("third warning must escalate to ban, got %+v", last)
	}
	if n := env.platform.Count("BanMember"); n != 1 {
		t.Fatalf("expected exactly one remote ban, got %d", n)
	}
	banned, err := env.store.IsBanned(ctx, testChat, testUser, time.Now())
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if !banned {
		t.Fatal("expected ban record")
	}
}

func TestGlobalWarningsPoolWithLocal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	exec := NewPenaltyExecutor(env.s, 0)

	penalties := []Penalty{
		{ChatID: testChat, UserID: testUser, Action: db.ActionWarn},
		{ChatID: testChat, UserID: testUser, Action: db.ActionWarn, Global: true},
	}
	var out *Outcome
	for _, p := range penalties {
		var err error
		if out, err = exec.Apply(ctx, p); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if out.Warnings != 2 {
		t.Fatalf("expected pooled count 2, got %d", out.Warnings)
	}
}

func TestGlobalWarningEscalatesToLocalBan(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	exec := NewPenaltyExecutor(env.s, 0)
	const otherChat int64 = -2002

	penalties := []Penalty{
		{ChatID: testChat, UserID: testUser, Action: db.ActionWarn},
		{ChatID: testChat, UserID: testUser, Action: db.ActionWarn},
		{ChatID: testChat, UserID: testUser, Action: db.ActionWarn, Global: true},
	}
	var out *Outcome
	for _, p := range penalties {
		var err error
		if out, err = exec.Apply(ctx, p); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if !out.Escalated || out.Action != db.ActionBan {
		t.Fatalf("expected escalation to ban, got %+v", out)
	}

	cases := []struct {
		chatID int64
		want   bool
	}{
		{chatID: testChat, want: true},
		{chatID: otherChat, want: false},
	}
	for _, tc := range cases {
		banned, err := env.store.IsBanned(ctx, tc.chatID, testUser, time.Now())
		if err != nil {
			t.Fatalf("is banned %d: %v", tc.chatID, err)
		}
		if banned != tc.want {
			t.Fatalf("chat %d: expected banned=%v, got %v", tc.chatID, tc.want, banned)
		}
	}
}

func TestDeleteActionRecordsNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.UpsertWordFilter(ctx, &db.WordFilter{ChatID: testChat, Pattern: "spam", Action: db.ActionDelete}); err != nil {
		t.Fatalf("add filter: %v", err)
	}

	verdict, err := newTestPipeline(env).Evaluate(ctx, Payload{ChatID: testChat, SenderID: testUser, MessageID: 7, Text: "this is spam"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict == nil || verdict.Action != db.ActionDelete {
		t.Fatalf("expected delete verdict, got %+v", verdict)
	}

	out, err := NewPenaltyExecutor(env.s, 0).Apply(ctx, Penalty{
		ChatID:    testChat,
		UserID:    testUser,
		MessageID: 7,
		Action:    verdict.Action,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !out.MessageDeleted {
		t.Fatal("message must be deleted")
	}
	deletes := env.platform.Calls("DeleteMessage")
	if len(deletes) != 1 || deletes[0].MessageID != 7 {
		t.Fatalf("unexpected deletes %+v", deletes)
	}
	for _, m := range []string{"BanMember", "RestrictMember", "UnbanMember"} {
		if n := env.platform.Count(m); n != 0 {
			t.Fatalf("unexpected %s calls: %d", m, n)
		}
	}

	warnings, err := env.store.CountWarnings(ctx, testChat, testUser)
	if err != nil {
		t.Fatalf("count warnings: %v", err)
	}
	banned, _ := env.store.IsBanned(ctx, testChat, testUser, time.Now())
	muted, _ := env.store.IsMuted(ctx, testChat, testUser, time.Now())
	if warnings != 0 || banned || muted {
		t.Fatalf("delete must not record anything: warnings=%d banned=%v muted=%v", warnings, banned, muted)
	}
}

func TestMuteAndKick(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	exec := NewPenaltyExecutor(env.s, 0)

	before := time.Now()
	out, err := exec.Apply(ctx, Penalty{ChatID: testChat, UserID: testUser, Action: db.ActionMute})
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	if d := out.Until.Sub(before); d < time.Hour || d > time.Hour+time.Minute {
		t.Fatalf("default mute must last an hour, got %s", d)
	}
	muted, err := env.store.IsMuted(ctx, testChat, testUser, time.Now())
	if err != nil || !muted {
		t.Fatalf("expected active mute, got %v, %v", muted, err)
	}

	if _, err := exec.Apply(ctx, Penalty{ChatID: testChat, UserID: testOtherUser, Action: db.ActionKick}); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if env.platform.Count("BanMember") != 1 || env.platform.Count("UnbanMember") != 1 {
		t.Fatalf("kick must ban then unban: %s", env.platform)
	}
	banned, _ := env.store.IsBanned(ctx, testChat, testOtherUser, time.Now())
	if banned {
		t.Fatal("kick must not record a ban")
	}
}

func TestRemoteFailureKeepsLocalRecord(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.platform.Fail["BanMember"] = errors.New("not enough rights")

	out, err := NewPenaltyExecutor(env.s, 0).Apply(ctx, Penalty{ChatID: testChat, UserID: testUser, Action: db.ActionBan})
	if err != nil {
		t.Fatalf("apply must not fail on remote errors: %v", err)
	}
	if len(out.RemoteErrors) != 1 {
		t.Fatalf("expected one remote error, got %v", out.RemoteErrors)
	}
	banned, _ := env.store.IsBanned(ctx, testChat, testUser, time.Now())
	if !banned {
		t.Fatal("local ban must be recorded")
	}
}

func TestGlobalBanIsIndependentOfLocal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	exec := NewPenaltyExecutor(env.s, 0)

	if _, err := exec.Apply(ctx, Penalty{ChatID: testChat, UserID: testUser, Action: db.ActionBan, Global: true}); err != nil {
		t.Fatalf("global ban: %v", err)
	}
	bans := env.platform.Calls("BanMember")
	if len(bans) != 1 || bans[0].ChatID != testChat {
		t.Fatalf("remote ban must hit the originating chat only: %+v", bans)
	}
	banned, _ := env.store.IsBanned(ctx, -2002, testUser, time.Now())
	if !banned {
		t.Fatal("global ban must apply to other chats")
	}

	if _, err := env.store.DeleteRecords(ctx, db.RecordBan, db.GlobalChatID, testUser); err != nil {
		t.Fatalf("remove global: %v", err)
	}
	banned, _ = env.store.IsBanned(ctx, testChat, testUser, time.Now())
	if banned {
		t.Fatal("global unban must clear the global record")
	}
}
