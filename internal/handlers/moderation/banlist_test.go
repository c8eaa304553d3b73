package moderation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iamwavecut/ngguard/internal/scheduler"
)

type fakeScheduler struct {
	mu    sync.Mutex
	once  []string
	every []string
}

func (f *fakeScheduler) ScheduleOnce(name string, _ time.Duration, _ scheduler.Task) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once = append(f.once, name)
	return func() {}, nil
}

func (f *fakeScheduler) Every(name string, _ time.Duration, _ scheduler.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.every = append(f.every, name)
	return nil
}

type listServer struct {
	*httptest.Server
	hits sync.Map
}

func newListServer(t *testing.T, lists map[string]string) *listServer {
	t.Helper()
	ls := &listServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter, _ := ls.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
		counter.(*atomic.Int32).Add(1)
		if r.URL.Path == "/account" {
			banned := r.URL.Query().Get("id") == "7"
			_, _ = fmt.Fprintf(w, `{"ok":true,"user_id":%s,"banned":%t}`, r.URL.Query().Get("id"), banned)
			return
		}
		body, ok := lists[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listServer) count(path string) int32 {
	counter, ok := ls.hits.Load(path)
	if !ok {
		return 0
	}
	return counter.(*atomic.Int32).Load()
}

func (ls *listServer) sources() BanlistSources {
	return BanlistSources{
		Daily:      []string{ls.URL + "/scammers", ls.URL + "/banlist"},
		Hourly:     []string{ls.URL + "/banlist-1h"},
		AccountURL: ls.URL + "/account?id=%d",
	}
}

func TestBanlistRefreshDailyThenHourly(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	srv := newListServer(t, map[string]string{
		"/scammers":   "1\n2\n",
		"/banlist":    "3\n\n4\n",
		"/banlist-1h": "5\n",
	})
	b := NewBanlist(env.store, &fakeScheduler{}, srv.sources())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, id := range []int64{1, 2, 3, 4} {
		if !b.IsKnownBanned(id) {
			t.Fatalf("expected %d known after daily pull", id)
		}
	}
	if b.IsKnownBanned(5) {
		t.Fatal("hourly list must not be pulled with the daily one")
	}

	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if srv.count("/banlist") != 1 || srv.count("/banlist-1h") != 0 {
		t.Fatalf("fresh list must not be refetched: daily=%d hourly=%d", srv.count("/banlist"), srv.count("/banlist-1h"))
	}

	now = now.Add(2 * time.Hour)
	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !b.IsKnownBanned(5) || !b.IsKnownBanned(1) {
		t.Fatal("hourly pull must add to the persisted list")
	}

	now = now.Add(25 * time.Hour)
	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := srv.count("/scammers"); got != 2 {
		t.Fatalf("expected second daily pull, got %d", got)
	}
}

func TestBanlistStartLoadsPersistedList(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.UpsertBanlist(ctx, []int64{42}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sched := &fakeScheduler{}
	b := NewBanlist(env.store, sched, BanlistSources{})
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !b.IsKnownBanned(42) {
		t.Fatal("persisted id must be known after start")
	}
	if len(sched.once) != 1 || len(sched.every) != 1 {
		t.Fatalf("expected bootstrap and recurring jobs, got %v %v", sched.once, sched.every)
	}
}

func TestBanlistCheckBanAsksAccountAPI(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	srv := newListServer(t, nil)
	b := NewBanlist(env.store, &fakeScheduler{}, srv.sources())
	ctx := context.Background()

	banned, err := b.CheckBan(ctx, 8)
	if err != nil || banned {
		t.Fatalf("expected clean account, got %t %v", banned, err)
	}
	banned, err = b.CheckBan(ctx, 7)
	if err != nil || !banned {
		t.Fatalf("expected banned account, got %t %v", banned, err)
	}
	if !b.IsKnownBanned(7) {
		t.Fatal("positive lookup must be remembered")
	}
	if _, err := b.CheckBan(ctx, 7); err != nil {
		t.Fatalf("check again: %v", err)
	}
	if got := srv.count("/account"); got != 2 {
		t.Fatalf("known id must not hit the API again, got %d calls", got)
	}

	offline := NewBanlist(env.store, &fakeScheduler{}, BanlistSources{})
	if banned, err := offline.CheckBan(ctx, 8); err != nil || banned {
		t.Fatalf("lookups off must report clean, got %t %v", banned, err)
	}
}

func TestFetchIDListRejectsGarbage(t *testing.T) {
	t.Parallel()
	srv := newListServer(t, map[string]string{"/bad": "1\nnot-an-id\n"})
	if _, err := fetchIDList(context.Background(), srv.Client(), srv.URL+"/bad"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := fetchIDList(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected status error")
	}
}
