package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/bot/bottest"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/db/sqlite"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/scheduler"
)

const (
	testChat       int64 = -1001
	testSuperAdmin int64 = 1
	testChatAdmin  int64 = 2
	testUser       int64 = 100
	testOtherUser  int64 = 101
)

type fakeJob struct {
	name      string
	delay     time.Duration
	task      scheduler.Task
	cancelled bool
}

type fakeScheduler struct {
	mu    sync.Mutex
	jobs  []*fakeJob
	every map[string]scheduler.Task
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{every: map[string]scheduler.Task{}}
}

func (f *fakeScheduler) ScheduleOnce(name string, delay time.Duration, task scheduler.Task) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &fakeJob{name: name, delay: delay, task: task}
	f.jobs = append(f.jobs, job)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		job.cancelled = true
	}, nil
}

func (f *fakeScheduler) Every(name string, _ time.Duration, task scheduler.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.every[name] = task
	return nil
}

// find returns jobs whose name starts with prefix.
func (f *fakeScheduler) find(prefix string) []*fakeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*fakeJob
	for _, j := range f.jobs {
		if strings.HasPrefix(j.name, prefix) {
			res = append(res, j)
		}
	}
	return res
}

func (f *fakeScheduler) isCancelled(j *fakeJob) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return j.cancelled
}

type testEnv struct {
	s         bot.Service
	platform  *bottest.Platform
	store     db.Client
	sched     *fakeScheduler
	penalties *moderation.PenaltyExecutor
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
	return &testEnv{
		s:         s,
		platform:  platform,
		store:     client,
		sched:     newFakeScheduler(),
		penalties: moderation.NewPenaltyExecutor(s, 0),
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

func testGroup() *api.Chat {
	return &api.Chat{ID: testChat, Type: "supergroup", Title: "Test group"}
}

func testUserOf(id int64) *api.User {
	return &api.User{ID: id, FirstName: "User", UserName: "user" + strings.Repeat("x", int(id%3))}
}

var lastMessageID atomic.Int64

func messageUpdate(from int64, text string, date time.Time) *api.Update {
	return &api.Update{Message: &api.Message{
		MessageID: int(lastMessageID.Add(1)),
		From:      testUserOf(from),
		Chat:      *testGroup(),
		Date:      int(date.Unix()),
		Text:      text,
	}}
}

func commandUpdate(from int64, text string) *api.Update {
	u := messageUpdate(from, text, time.Now())
	cmd := strings.Fields(text)[0]
	u.Message.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return u
}

func handle(t *testing.T, h bot.Handler, u *api.Update) bool {
	t.Helper()
	chat := testGroup()
	var user *api.User
	switch {
	case u.Message != nil:
		user = u.Message.From
	case u.CallbackQuery != nil:
		user = u.CallbackQuery.From
	}
	proceed, err := h.Handle(context.Background(), u, chat, user)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return proceed
}
