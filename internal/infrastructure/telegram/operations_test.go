package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/sony/gobreaker"
)

type fakeRequester struct {
	mu       sync.Mutex
	requests []api.Chattable
	err      error
	result   json.RawMessage
	admins   []api.ChatMember
}

func (f *fakeRequester) Request(c api.Chattable) (*api.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if f.err != nil {
		return nil, f.err
	}
	return &api.APIResponse{Ok: true, Result: f.result}, nil
}

func (f *fakeRequester) Send(c api.Chattable) (api.Message, error) {
	if _, err := f.Request(c); err != nil {
		return api.Message{}, err
	}
	return api.Message{MessageID: 42}, nil
}

func (f *fakeRequester) GetChatMember(api.GetChatMemberConfig) (api.ChatMember, error) {
	return api.ChatMember{Status: "member"}, f.err
}

func (f *fakeRequester) GetChatAdministrators(api.ChatAdministratorsConfig) ([]api.ChatMember, error) {
	return f.admins, f.err
}

func (f *fakeRequester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newOps(r Requester) *Operations {
	return NewOperations(r, Options{
		RequestsPerSecond: 1000,
		Burst:             100,
		BreakerFailures:   3,
		BreakerTimeout:    time.Minute,
	})
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	t.Parallel()

	fake := &fakeRequester{err: errors.New("connection reset")}
	ops := newOps(fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ops.DeleteMessage(ctx, 1, i); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	err := ops.DeleteMessage(ctx, 1, 99)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if n := fake.count(); n != 3 {
		t.Fatalf("expected 3 remote calls, got %d", n)
	}
}

func TestBreakerIgnoresAPIErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeRequester{err: &api.Error{Code: 400, Message: "Bad Request: message to delete not found"}}
	ops := newOps(fake)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := ops.DeleteMessage(ctx, 1, i)
		var apiErr *api.Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("call %d: expected api error, got %v", i, err)
		}
	}
	if n := fake.count(); n != 10 {
		t.Fatalf("expected 10 remote calls, got %d", n)
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	fake := &fakeRequester{}
	ops := NewOperations(fake, Options{RequestsPerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := ops.DeleteMessage(ctx, 1, 1); err != nil {
		t.Fatalf("first call within burst: %v", err)
	}
	if err := ops.DeleteMessage(ctx, 1, 2); err == nil {
		t.Fatal("expected rate limit error")
	}
	if n := fake.count(); n != 1 {
		t.Fatalf("expected 1 remote call, got %d", n)
	}
}

func TestGetChatAdministratorsSkipsBots(t *testing.T) {
	t.Parallel()

	fake := &fakeRequester{admins: []api.ChatMember{
		{User: &api.User{ID: 1}},
		{User: &api.User{ID: 2, IsBot: true}},
		{User: &api.User{ID: 3}},
	}}
	ids, err := newOps(fake).GetChatAdministrators(context.Background(), -100)
	if err != nil {
		t.Fatalf("get admins: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestGetMemberCountDecodesResult(t *testing.T) {
	t.Parallel()

	fake := &fakeRequester{result: json.RawMessage("17")}
	n, err := newOps(fake).GetMemberCount(context.Background(), -100)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 17 {
		t.Fatalf("expected 17, got %d", n)
	}
}
