package observability

import (
	"context"
	"testing"
	"time"
)

func TestServerStartStopWithoutListener(t *testing.T) {
	t.Parallel()

	srv := NewServer("")
	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestRecordersDoNotPanic(t *testing.T) {
	t.Parallel()

	done := StartUpdate()
	RecordVerdict("word_filter", "delete")
	RecordPenalty("ban", false)
	RecordFlood()
	RecordGate("night")
	RecordCaptcha("verified")
	RecordReport("filed")
	done("ok")
}
