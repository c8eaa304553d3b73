package timegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	slowModeSize = 50_000
	// MaxSlowModeDelay bounds both the configurable delay and the tracking TTL.
	MaxSlowModeDelay = time.Hour
)

type SlowMode struct {
	mu       sync.Mutex
	lastSeen *expirable.LRU[string, time.Time]
}

func NewSlowMode() *SlowMode {
	return &SlowMode{
		lastSeen: expirable.NewLRU[string, time.Time](slowModeSize, nil, MaxSlowModeDelay),
	}
}

// Allow accepts the message when delay has elapsed since the user's last accepted one.
func (s *SlowMode) Allow(chatID, userID int64, delay time.Duration, now time.Time) bool {
	k := fmt.Sprintf("%d:%d", chatID, userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastSeen.Get(k); ok && now.Sub(last) < delay {
		return false
	}
	s.lastSeen.Add(k, now)
	return true
}
