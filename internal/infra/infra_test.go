package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGoRecoverableReturnsWithoutPanic(t *testing.T) {
	t.Parallel()
	runs := 0
	GoRecoverable(context.Background(), 3, "plain", func(context.Context) { runs++ })
	if runs != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
}

func TestGoRecoverableStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	GoRecoverable(ctx, -1, "panicky", func(context.Context) {
		runs++
		cancel()
		panic("boom")
	})
	if runs != 1 {
		t.Fatalf("expected no restart after cancel, got %d runs", runs)
	}
}

func TestMonitorFileSignalsOnChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bin")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := monitorFile(ctx, path, 10*time.Millisecond)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for i := 1; ; i++ {
		select {
		case _, ok := <-ch:
			if !ok {
				t.Fatal("channel closed without a signal")
			}
			return
		case <-tick.C:
			// Keep moving the mtime so a change lands after the watcher's first stat.
			later := time.Now().Add(time.Duration(i) * time.Hour)
			if err := os.Chtimes(path, later, later); err != nil {
				t.Fatalf("chtimes: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no change detected")
		}
	}
}

func TestMonitorFileClosesOnMissingFile(t *testing.T) {
	t.Parallel()
	ch := monitorFile(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Millisecond)
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
}
