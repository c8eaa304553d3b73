// Package infra holds process-level helpers: panic recovery for long-running
// loops and a watch on the executable for restart-on-upgrade.
package infra

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const restartDelay = 5 * time.Second

// GoRecoverable runs f and restarts it after a panic until maxPanics restarts are spent.
// A negative maxPanics restarts forever. It returns when f returns or ctx is done.
func GoRecoverable(ctx context.Context, maxPanics int, id string, f func(ctx context.Context)) {
	entry := log.WithFields(log.Fields{"object": "GoRecoverable", "job": id})
	for {
		if !runGuarded(ctx, entry, f) {
			return
		}
		if maxPanics == 0 {
			entry.Fatal("panic limit exceeded, exiting")
			return
		}
		if maxPanics > 0 {
			maxPanics--
		}
		entry.WithField("panics_left", maxPanics).Debug("restarting job")
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// runGuarded reports whether f panicked.
func runGuarded(ctx context.Context, entry *log.Entry, f func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			entry.WithFields(log.Fields{
				"panic": fmt.Sprint(r),
				"site":  panicSite(),
			}).Error("job panicked")
			panicked = true
		}
	}()
	f(ctx)
	return false
}

// panicSite names the first frame outside the runtime.
func panicSite() string {
	var pcs [16]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.Function, frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}
