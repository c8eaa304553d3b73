package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/scheduler"
)

const (
	banlistHTTPTimeout = 10 * time.Second
	banlistMaxRetries  = 3
	banlistRetryStep   = 300 * time.Millisecond

	banlistDailyInterval  = 24 * time.Hour
	banlistHourlyInterval = time.Hour

	kvKeyLastDailyFetch  = "last_daily_fetch"
	kvKeyLastHourlyFetch = "last_hourly_fetch"
)

// BanlistSources points at the public known-spammer lists. An empty
// AccountURL turns per-user lookups off.
type BanlistSources struct {
	Daily      []string
	Hourly     []string
	AccountURL string
}

func DefaultBanlistSources() BanlistSources {
	return BanlistSources{
		Daily:      []string{"https://lols.bot/scammers.txt", "https://lols.bot/spam/banlist.txt"},
		Hourly:     []string{"https://lols.bot/spam/banlist-1h.txt"},
		AccountURL: "https://api.lols.bot/account?id=%d",
	}
}

type banlistStore interface {
	db.BanlistStore
	db.KVStore
}

type banlistScheduler interface {
	ScheduleOnce(name string, delay time.Duration, task scheduler.Task) (func(), error)
	Every(name string, interval time.Duration, task scheduler.Task) error
}

// Banlist mirrors the public known-spammer lists into the store and answers
// membership checks from memory.
type Banlist struct {
	store   banlistStore
	sched   banlistScheduler
	client  *http.Client
	sources BanlistSources
	now     func() time.Time

	mu    sync.RWMutex
	known map[int64]struct{}
}

func NewBanlist(store banlistStore, sched banlistScheduler, sources BanlistSources) *Banlist {
	return &Banlist{
		store:   store,
		sched:   sched,
		client:  &http.Client{Timeout: banlistHTTPTimeout},
		sources: sources,
		now:     time.Now,
		known:   map[int64]struct{}{},
	}
}

// Start loads the persisted list and schedules refreshes. The first refresh
// runs right away in the background.
func (b *Banlist) Start(ctx context.Context) error {
	persisted, err := b.store.GetBanlist(ctx)
	if err != nil {
		return errors.WithMessage(err, "load banlist")
	}
	b.setKnown(persisted)
	b.getLogEntry().WithField("count", len(persisted)).Debug("banlist loaded")

	if _, err := b.sched.ScheduleOnce("banlist-bootstrap", 0, b.refresh); err != nil {
		return err
	}
	return b.sched.Every("banlist-refresh", banlistHourlyInterval, b.refresh)
}

func (b *Banlist) Stop(context.Context) error {
	return nil
}

func (b *Banlist) IsKnownBanned(userID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.known[userID]
	return ok
}

// CheckBan answers from the local list first and asks the account API
// only for ids it has not seen.
func (b *Banlist) CheckBan(ctx context.Context, userID int64) (bool, error) {
	if b.IsKnownBanned(userID) {
		return true, nil
	}
	if b.sources.AccountURL == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(b.sources.AccountURL, userID), nil)
	if err != nil {
		return false, errors.WithMessage(err, "create request")
	}
	req.Header.Set("accept", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return false, errors.WithMessage(err, "lookup account")
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, errors.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var info struct {
		OK     bool  `json:"ok"`
		UserID int64 `json:"user_id"`
		Banned bool  `json:"banned"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, errors.WithMessage(err, "decode account")
	}
	if info.Banned {
		b.mark(userID)
	}
	return info.Banned, nil
}

// Refresh pulls the full lists once a day and the hourly delta otherwise.
// A full pull also counts as the hourly one.
func (b *Banlist) Refresh(ctx context.Context) error {
	lastDaily, err := b.lastFetch(ctx, kvKeyLastDailyFetch)
	if err != nil {
		return err
	}
	if lastDaily.IsZero() || b.now().Sub(lastDaily) >= banlistDailyInterval {
		return b.pull(ctx, b.sources.Daily, kvKeyLastDailyFetch, kvKeyLastHourlyFetch)
	}
	lastHourly, err := b.lastFetch(ctx, kvKeyLastHourlyFetch)
	if err != nil {
		return err
	}
	if lastHourly.IsZero() || b.now().Sub(lastHourly) >= banlistHourlyInterval {
		return b.pull(ctx, b.sources.Hourly, kvKeyLastHourlyFetch)
	}
	return nil
}

func (b *Banlist) refresh(ctx context.Context) {
	if err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
		b.getLogEntry().WithField("error", err.Error()).Error("cant refresh banlist")
	}
}

func (b *Banlist) pull(ctx context.Context, urls []string, stampKeys ...string) error {
	fetched, err := fetchIDs(ctx, b.client, urls)
	if err != nil {
		return err
	}
	userIDs := make([]int64, 0, len(fetched))
	for userID := range fetched {
		userIDs = append(userIDs, userID)
	}
	if err := b.store.UpsertBanlist(ctx, userIDs); err != nil {
		return errors.WithMessage(err, "upsert banlist")
	}
	full, err := b.store.GetBanlist(ctx)
	if err != nil {
		return errors.WithMessage(err, "get banlist")
	}
	b.setKnown(full)
	b.getLogEntry().WithFields(log.Fields{"fetched": len(userIDs), "total": len(full)}).Debug("banlist refreshed")

	stamp := b.now().UTC().Format(time.RFC3339)
	for _, key := range stampKeys {
		if err := b.store.SetKV(ctx, key, stamp); err != nil {
			b.getLogEntry().WithField("error", err.Error()).Warn("cant store banlist fetch time")
		}
	}
	return nil
}

func (b *Banlist) lastFetch(ctx context.Context, key string) (time.Time, error) {
	raw, err := b.store.GetKV(ctx, key)
	if err != nil {
		return time.Time{}, errors.WithMessagef(err, "get %s", key)
	}
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		b.getLogEntry().WithFields(log.Fields{"key": key, "value": raw}).Warn("bad banlist fetch time, refetching")
		return time.Time{}, nil
	}
	return t, nil
}

func (b *Banlist) setKnown(banned map[int64]struct{}) {
	snapshot := make(map[int64]struct{}, len(banned))
	for userID := range banned {
		snapshot[userID] = struct{}{}
	}
	b.mu.Lock()
	b.known = snapshot
	b.mu.Unlock()
}

func (b *Banlist) mark(userID int64) {
	b.mu.Lock()
	b.known[userID] = struct{}{}
	b.mu.Unlock()
}

func (b *Banlist) getLogEntry() *log.Entry {
	return log.WithField("object", "Banlist")
}
