// Package flood tracks per-(chat,user) message rates against each chat's flood policy.
package flood

import (
	"sync"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

type Policy struct {
	Enabled      bool
	Limit        int
	Window       time.Duration
	Action       db.Action
	MuteDuration time.Duration
}

var DefaultPolicy = Policy{
	Enabled:      false,
	Limit:        5,
	Window:       10 * time.Second,
	Action:       db.ActionMute,
	MuteDuration: time.Hour,
}

type key struct {
	chatID int64
	userID int64
}

type window struct {
	mu    sync.Mutex
	stamp []time.Time
}

// Tracker is process-local; windows and policies are lost on restart.
type Tracker struct {
	defaults Policy

	policyMu sync.RWMutex
	policies map[int64]Policy

	windowsMu sync.Mutex
	windows   map[key]*window
}

func NewTracker(defaults Policy) *Tracker {
	if defaults.Limit <= 0 {
		defaults.Limit = DefaultPolicy.Limit
	}
	if defaults.Window <= 0 {
		defaults.Window = DefaultPolicy.Window
	}
	if defaults.Action == "" {
		defaults.Action = DefaultPolicy.Action
	}
	if defaults.MuteDuration <= 0 {
		defaults.MuteDuration = DefaultPolicy.MuteDuration
	}
	return &Tracker{
		defaults: defaults,
		policies: make(map[int64]Policy),
		windows:  make(map[key]*window),
	}
}

func (t *Tracker) Policy(chatID int64) Policy {
	t.policyMu.RLock()
	p, ok := t.policies[chatID]
	t.policyMu.RUnlock()
	if !ok {
		return t.defaults
	}
	return p
}

// SetLimit enables flood control with the given limit; zero disables it.
func (t *Tracker) SetLimit(chatID int64, limit int) {
	t.update(chatID, func(p *Policy) {
		if limit <= 0 {
			p.Enabled = false
			return
		}
		p.Enabled = true
		p.Limit = limit
	})
}

func (t *Tracker) SetAction(chatID int64, action db.Action, muteDuration time.Duration) {
	t.update(chatID, func(p *Policy) {
		p.Action = action
		if muteDuration > 0 {
			p.MuteDuration = muteDuration
		}
	})
}

func (t *Tracker) update(chatID int64, mutate func(p *Policy)) {
	t.policyMu.Lock()
	defer t.policyMu.Unlock()

	p, ok := t.policies[chatID]
	if !ok {
		p = t.defaults
	}
	mutate(&p)
	t.policies[chatID] = p
}

// RecordAndCheck records a message at now and reports whether the sender exceeded the limit.
func (t *Tracker) RecordAndCheck(chatID, userID int64, now time.Time) bool {
	policy := t.Policy(chatID)
	if !policy.Enabled {
		return false
	}

	w := t.lockWindow(key{chatID: chatID, userID: userID})
	defer w.mu.Unlock()

	w.trim(now.Add(-policy.Window))
	w.stamp = append(w.stamp, now)
	return len(w.stamp) > policy.Limit
}

// Reset forgets the sender's window, typically after a penalty was applied.
func (t *Tracker) Reset(chatID, userID int64) {
	t.windowsMu.Lock()
	delete(t.windows, key{chatID: chatID, userID: userID})
	t.windowsMu.Unlock()
}

// Sweep drops windows whose newest message is older than the chat's window.
func (t *Tracker) Sweep(now time.Time) int {
	t.windowsMu.Lock()
	defer t.windowsMu.Unlock()

	removed := 0
	for k, w := range t.windows {
		cutoff := now.Add(-t.Policy(k.chatID).Window)
		w.mu.Lock()
		w.trim(cutoff)
		empty := len(w.stamp) == 0
		w.mu.Unlock()
		if empty {
			delete(t.windows, k)
			removed++
		}
	}
	return removed
}

// lockWindow returns the key's window locked. The window is locked before the map is
// released so Sweep cannot drop it between lookup and append.
func (t *Tracker) lockWindow(k key) *window {
	t.windowsMu.Lock()
	defer t.windowsMu.Unlock()

	w, ok := t.windows[k]
	if !ok {
		w = &window{}
		t.windows[k] = w
	}
	w.mu.Lock()
	return w
}

func (w *window) trim(cutoff time.Time) {
	i := 0
	for i < len(w.stamp) && w.stamp[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.stamp = append(w.stamp[:0], w.stamp[i:]...)
	}
}
