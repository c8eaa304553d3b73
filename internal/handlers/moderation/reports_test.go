package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iamwavecut/ngguard/internal/db"
)

func newTestWorkflow(env *testEnv) *ReportWorkflow {
	return NewReportWorkflow(env.s, NewPenaltyExecutor(env.s, 0))
}

func fileTestReport(t *testing.T, w *ReportWorkflow) *db.Report {
	t.Helper()
	report, err := w.File(context.Background(), FileRequest{
		ChatID:         testChat,
		ReporterID:     testOtherUser,
		ReportedUserID: testUser,
		MessageID:      55,
	})
	if err != nil {
		t.Fatalf("file report: %v", err)
	}
	return report
}

func TestFileReportRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	w := newTestWorkflow(env)

	report := fileTestReport(t, w)
	if report.Reason != DefaultReportReason || report.Status != db.ReportPending {
		t.Fatalf("unexpected report %+v", report)
	}

	_, err := w.File(ctx, FileRequest{ChatID: testChat, ReporterID: testOtherUser, ReportedUserID: 300})
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if cooldown.Remaining <= 0 || cooldown.Remaining > db.DefaultReportCooldown {
		t.Fatalf("unexpected remaining %s", cooldown.Remaining)
	}

	if _, err := w.File(ctx, FileRequest{ChatID: testChat, ReporterID: 400, ReportedUserID: testChatAdmin}); !errors.Is(err, ErrReportedAdmin) {
		t.Fatalf("expected ErrReportedAdmin, got %v", err)
	}
	if _, err := w.File(ctx, FileRequest{ChatID: testChat, ReporterID: 401, ReportedUserID: 401}); !errors.Is(err, ErrSelfReport) {
		t.Fatalf("expected ErrSelfReport, got %v", err)
	}

	env.settings(t, func(s *db.Settings) { s.ReportsEnabled = false })
	if _, err := w.File(ctx, FileRequest{ChatID: testChat, ReporterID: 402, ReportedUserID: testUser}); !errors.Is(err, ErrReportsDisabled) {
		t.Fatalf("expected ErrReportsDisabled, got %v", err)
	}
}

func TestReportCooldownZeroAllowsRepeat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.settings(t, func(s *db.Settings) { s.ReportCooldown = 0 })
	w := newTestWorkflow(env)

	fileTestReport(t, w)
	fileTestReport(t, w)
}

func TestResolveConcurrentAppliesOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	w := newTestWorkflow(env)
	report := fileTestReport(t, w)

	const admins = 8
	results := make([]*Resolution, admins)
	var wg sync.WaitGroup
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := w.Resolve(ctx, report.ID, testChatAdmin, ReportBan)
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		switch res.Status {
		case Applied:
			applied++
		case AlreadyHandled:
		default:
			t.Fatalf("unexpected status %s", res.Status)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied resolution, got %d", applied)
	}
	if n := env.platform.Count("BanMember"); n != 1 {
		t.Fatalf("expected one remote ban, got %d", n)
	}

	stored, err := env.store.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if stored.Status != db.ReportResolved || !stored.HandledBy.Valid || !stored.ResolvedAt.Valid {
		t.Fatalf("unexpected stored report %+v", stored)
	}
}

func TestResolveReplayAndGuards(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	w := newTestWorkflow(env)
	report := fileTestReport(t, w)

	res, err := w.Resolve(ctx, report.ID, testUser, ReportBan)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != Unauthorized {
		t.Fatalf("expected unauthorized, got %s", res.Status)
	}

	res, err = w.Resolve(ctx, report.ID+100, testChatAdmin, ReportBan)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != NotFound {
		t.Fatalf("expected not found, got %s", res.Status)
	}

	res, err = w.Resolve(ctx, report.ID, testChatAdmin, ReportDismiss)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != Applied || res.Report.Status != db.ReportDismissed {
		t.Fatalf("expected dismissed, got %+v", res)
	}

	res, err = w.Resolve(ctx, report.ID, testSuperAdmin, ReportBan)
	if err != nil {
		t.Fatalf("resolve replay: %v", err)
	}
	if res.Status != AlreadyHandled {
		t.Fatalf("expected already handled, got %s", res.Status)
	}
	if n := env.platform.Count("BanMember"); n != 0 {
		t.Fatalf("dismissed report must not ban, got %d", n)
	}
}

func TestResolveDeleteRemovesReportedMessage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := newTestWorkflow(env)
	report := fileTestReport(t, w)

	res, err := w.Resolve(context.Background(), report.ID, testChatAdmin, ReportDelete)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != Applied || res.Outcome != nil {
		t.Fatalf("unexpected resolution %+v", res)
	}
	deletes := env.platform.Calls("DeleteMessage")
	if len(deletes) != 1 || deletes[0].MessageID != 55 {
		t.Fatalf("unexpected deletes %+v", deletes)
	}
}
