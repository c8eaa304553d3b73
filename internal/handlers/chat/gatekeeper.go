package chat

/*
mermaid:
graph CaptchaFlow
    A[Member joins] --> B{Captcha enabled and not added by admin?}
    B -->|No| C[Send welcome]
    B -->|Yes| D[Restrict member]
    D --> E[Send a+b challenge with 3 buttons]
    E --> F[Persist pending row, arm deadline]
    F --> G{First to take the pending row}
    G -->|Correct answer| H[Unrestrict, edit challenge, welcome]
    G -->|Wrong answer| I[Kick, edit challenge]
    G -->|Deadline| J[Kick, delete challenge, notice]
*/

import (
	"context"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
)

const (
	captchaSweepInterval = time.Minute
)

type captchaKey struct {
	chatID int64
	userID int64
}

type captchaTimer struct {
	token  string
	cancel func()
}

type Gatekeeper struct {
	s      bot.Service
	store  db.Client
	sched  Scheduler
	kicker Kicker
	now    func() time.Time

	timersMu sync.Mutex
	timers   map[captchaKey]captchaTimer

	startStopMutex sync.Mutex
	started        bool
	logger         *log.Entry
}

func NewGatekeeper(s bot.Service, sched Scheduler, kicker Kicker) *Gatekeeper {
	return &Gatekeeper{
		s:      s,
		store:  s.GetDB(),
		sched:  sched,
		kicker: kicker,
		now:    time.Now,
		timers: make(map[captchaKey]captchaTimer),
		logger: log.WithField("handler", "gatekeeper"),
	}
}

// Start re-arms deadlines of challenges that survived a restart and starts the expiry sweep.
func (g *Gatekeeper) Start(ctx context.Context) error {
	g.startStopMutex.Lock()
	defer g.startStopMutex.Unlock()
	if g.started {
		return nil
	}

	pending, err := g.store.ListPendingCaptchas(ctx)
	if err != nil {
		return errors.WithMessage(err, "list pending captchas")
	}
	for i := range pending {
		g.arm(&pending[i])
	}
	if len(pending) > 0 {
		g.logger.WithField("count", len(pending)).Info("re-armed pending captchas")
	}

	if err := g.sched.Every("captcha-sweep", captchaSweepInterval, g.sweep); err != nil {
		return errors.WithMessage(err, "schedule captcha sweep")
	}
	g.started = true
	return nil
}

func (g *Gatekeeper) Stop(_ context.Context) error {
	g.startStopMutex.Lock()
	defer g.startStopMutex.Unlock()
	if !g.started {
		return nil
	}
	g.started = false

	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	for key, t := range g.timers {
		t.cancel()
		delete(g.timers, key)
	}
	return nil
}

func (g *Gatekeeper) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	if chat == nil || user == nil {
		return true, nil
	}

	switch {
	case u.CallbackQuery != nil:
		if !strings.HasPrefix(u.CallbackQuery.Data, captchaCallbackPrefix+";") {
			return true, nil
		}
		return false, g.handleAnswer(ctx, u.CallbackQuery)
	case u.Message != nil && len(u.Message.NewChatMembers) > 0:
		if !(chat.IsGroup() || chat.IsSuperGroup()) {
			return true, nil
		}
		return true, g.handleJoin(ctx, u.Message, chat)
	default:
		return true, nil
	}
}
