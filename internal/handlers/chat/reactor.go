package chat

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
	"github.com/iamwavecut/ngguard/internal/flood"
	"github.com/iamwavecut/ngguard/internal/handlers/moderation"
	"github.com/iamwavecut/ngguard/internal/timegate"
)

type MessageProcessingStage string

const (
	StageInit     MessageProcessingStage = "init"
	StageMute     MessageProcessingStage = "mute_check"
	StageSilence  MessageProcessingStage = "silence_check"
	StageNight    MessageProcessingStage = "night_mode"
	StageSlow     MessageProcessingStage = "slow_mode"
	StageFlood    MessageProcessingStage = "flood_check"
	StageFilters  MessageProcessingStage = "filters"
	StagePenalty  MessageProcessingStage = "penalty"
	maxLastResult                        = 1000
)

type MessageProcessingResult struct {
	Stage      MessageProcessingStage
	Skipped    bool
	SkipReason string
	Verdict    *moderation.Verdict
	Outcome    *moderation.Outcome
	Deleted    bool
}

// Reactor gates every group message and routes commands and report buttons.
type Reactor struct {
	s         bot.Service
	store     db.Client
	sched     Scheduler
	flood     *flood.Tracker
	nights    *timegate.NightWatch
	slow      *timegate.SlowMode
	words     *moderation.WordFilter
	urls      *moderation.URLFilter
	pipeline  *moderation.Pipeline
	penalties *moderation.PenaltyExecutor
	reports   *moderation.ReportWorkflow
	commands  map[string]command
	now       func() time.Time

	resultsMu   sync.Mutex
	lastResults map[resultKey]*MessageProcessingResult
	resultOrder []resultKey
}

// resultKey addresses a message; Telegram message ids are only unique within a chat.
type resultKey struct {
	chatID    int64
	messageID int
}

func NewReactor(s bot.Service, sched Scheduler, tracker *flood.Tracker, penalties *moderation.PenaltyExecutor) *Reactor {
	store := s.GetDB()
	words := moderation.NewWordFilter(store)
	urls := moderation.NewURLFilter(store)
	r := &Reactor{
		s:         s,
		store:     store,
		sched:     sched,
		flood:     tracker,
		nights:    timegate.NewNightWatch(),
		slow:      timegate.NewSlowMode(),
		words:     words,
		urls:      urls,
		penalties: penalties,
		reports:   moderation.NewReportWorkflow(s, penalties),
		pipeline: moderation.NewPipeline(
			moderation.NewMemberExemption(s),
			words,
			urls,
			moderation.NewMediaFilter(store),
			moderation.NewSpamFilter(s),
		),
		now:         time.Now,
		lastResults: make(map[resultKey]*MessageProcessingResult),
		resultOrder: make([]resultKey, 0, maxLastResult),
	}
	r.commands = r.registerCommands()
	r.getLogEntry().Debug("created new reactor")
	return r
}

func (r *Reactor) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	entry := r.getLogEntry().WithField("method", "Handle")
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u == nil {
		return false, errors.New("nil update")
	}
	if chat == nil || user == nil {
		return true, nil
	}

	if u.CallbackQuery != nil {
		if !strings.HasPrefix(u.CallbackQuery.Data, reportCallbackPrefix+";") {
			return true, nil
		}
		return false, r.handleReportCallback(ctx, u.CallbackQuery)
	}

	msg := u.Message
	if msg == nil || msg.From == nil {
		return true, nil
	}

	settings, err := r.s.GetSettings(ctx, chat.ID)
	if err != nil {
		return false, errors.WithMessage(err, "get settings")
	}

	if msg.IsCommand() {
		if err := r.handleCommand(ctx, msg, chat, user, settings); err != nil {
			entry.WithField("error", err.Error()).Error("error handling command")
			return true, err
		}
		return true, nil
	}

	if !(chat.IsGroup() || chat.IsSuperGroup()) || isServiceMessage(msg) {
		return true, nil
	}
	result, err := r.handleMessage(ctx, msg, chat, user, settings)
	if err != nil {
		entry.WithField("error", err.Error()).Error("error handling message")
		return true, err
	}
	if !result.Deleted && result.Outcome == nil {
		if err := r.noteShortcut(ctx, msg, chat, user); err != nil {
			return true, err
		}
	}
	return true, nil
}

func isServiceMessage(msg *api.Message) bool {
	return len(msg.NewChatMembers) > 0 || msg.LeftChatMember != nil || msg.NewChatTitle != "" ||
		len(msg.NewChatPhoto) > 0 || msg.DeleteChatPhoto || msg.GroupChatCreated ||
		msg.SuperGroupChatCreated || msg.MigrateToChatID != 0
}

func (r *Reactor) getLogEntry() *log.Entry {
	return log.WithField("object", "Reactor")
}

func (r *Reactor) storeLastResult(chatID int64, messageID int, result *MessageProcessingResult) {
	key := resultKey{chatID: chatID, messageID: messageID}
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	if _, ok := r.lastResults[key]; !ok {
		r.resultOrder = append(r.resultOrder, key)
	}
	r.lastResults[key] = result
	if len(r.resultOrder) > maxLastResult {
		oldest := r.resultOrder[0]
		r.resultOrder = r.resultOrder[1:]
		delete(r.lastResults, oldest)
	}
}

func (r *Reactor) GetLastProcessingResult(chatID int64, messageID int) *MessageProcessingResult {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	return r.lastResults[resultKey{chatID: chatID, messageID: messageID}]
}

// Sweep drops idle flood windows.
func (r *Reactor) Sweep(_ context.Context) {
	if removed := r.flood.Sweep(r.now()); removed > 0 {
		r.getLogEntry().WithField("removed", removed).Trace("swept flood windows")
	}
}
