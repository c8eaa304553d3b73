// Package timegate answers wall-clock window questions for night mode and slow mode.
package timegate

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidClock = errors.New("invalid time, expected HH:MM")

	clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)
)

// Clock is a wall-clock time with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, errors.WithMessage(ErrInvalidClock, s)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: minute}, nil
}

func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// InWindow reports whether now lies in [start, end], both ends inclusive.
// A start after end spans midnight.
func InWindow(start, end, now Clock) bool {
	s, e, n := start.minutes(), end.minutes(), now.minutes()
	if s <= e {
		return s <= n && n <= e
	}
	return n >= s || n <= e
}

// SessionStart returns the local date on which the window containing now began.
// The second result is false when now is outside the window.
func SessionStart(start, end Clock, now time.Time) (time.Time, bool) {
	n := ClockOf(now)
	if !InWindow(start, end, n) {
		return time.Time{}, false
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if start.minutes() > end.minutes() && n.minutes() <= end.minutes() {
		day = day.AddDate(0, 0, -1)
	}
	return day, true
}
