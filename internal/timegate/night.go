package timegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	nightWatchSize = 10_000
	nightWatchTTL  = 24 * time.Hour
)

// NightWatch remembers who was already warned during the current night session.
type NightWatch struct {
	warned *expirable.LRU[string, struct{}]

	mu    sync.Mutex
	epoch map[int64]int
}

func NewNightWatch() *NightWatch {
	return &NightWatch{
		warned: expirable.NewLRU[string, struct{}](nightWatchSize, nil, nightWatchTTL),
		epoch:  make(map[int64]int),
	}
}

// ShouldWarn returns true the first time a user is seen in a chat's night session.
func (w *NightWatch) ShouldWarn(chatID, userID int64, session time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	k := fmt.Sprintf("%d:%d:%d:%s", chatID, w.epoch[chatID], userID, session.Format(time.DateOnly))
	if _, ok := w.warned.Get(k); ok {
		return false
	}
	w.warned.Add(k, struct{}{})
	return true
}

// Reset starts a fresh dedup generation for the chat, used when night mode is switched back on.
func (w *NightWatch) Reset(chatID int64) {
	w.mu.Lock()
	w.epoch[chatID]++
	w.mu.Unlock()
}
