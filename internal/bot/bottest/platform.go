// Package bottest provides an in-memory Platform that records every call.
package bottest

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

type Call struct {
	Method    string
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	Until     time.Time
}

type Platform struct {
	mu      sync.Mutex
	calls   []Call
	sent    []api.Chattable
	nextID  int
	Admins  map[int64][]int64
	Members map[int64]map[int64]*api.ChatMember
	// Fail makes the named methods return an error.
	Fail map[string]error
}

func NewPlatform() *Platform {
	return &Platform{
		nextID:  1000,
		Admins:  make(map[int64][]int64),
		Members: make(map[int64]map[int64]*api.ChatMember),
		Fail:    make(map[string]error),
	}
}

func (p *Platform) record(c Call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
	return p.Fail[c.Method]
}

func (p *Platform) Calls(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []Call
	for _, c := range p.calls {
		if method == "" || c.Method == method {
			res = append(res, c)
		}
	}
	return res
}

func (p *Platform) Count(method string) int {
	return len(p.Calls(method))
}

func (p *Platform) Sent() []api.Chattable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.Chattable(nil), p.sent...)
}

// Texts returns the text of every sent api.MessageConfig addressed to chatID.
func (p *Platform) Texts(chatID int64) []string {
	var res []string
	for _, c := range p.Sent() {
		if m, ok := c.(api.MessageConfig); ok && m.ChatID == chatID {
			res = append(res, m.Text)
		}
	}
	return res
}

func (p *Platform) Send(_ context.Context, c api.Chattable) (api.Message, error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.sent = append(p.sent, c)
	p.mu.Unlock()

	call := Call{Method: "Send", MessageID: id}
	if m, ok := c.(api.MessageConfig); ok {
		call.ChatID = m.ChatID
		call.Text = m.Text
	}
	if err := p.record(call); err != nil {
		return api.Message{}, err
	}
	return api.Message{MessageID: id, Chat: api.Chat{ID: call.ChatID}}, nil
}

func (p *Platform) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return p.record(Call{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID})
}

func (p *Platform) EditMessageText(_ context.Context, chatID int64, messageID int, text string) error {
	return p.record(Call{Method: "EditMessageText", ChatID: chatID, MessageID: messageID, Text: text})
}

func (p *Platform) AnswerCallback(_ context.Context, callbackID, text string, _ bool) error {
	return p.record(Call{Method: "AnswerCallback", Text: text})
}

func (p *Platform) RestrictMember(_ context.Context, chatID, userID int64, until time.Time) error {
	return p.record(Call{Method: "RestrictMember", ChatID: chatID, UserID: userID, Until: until})
}

func (p *Platform) UnrestrictMember(_ context.Context, chatID, userID int64) error {
	return p.record(Call{Method: "UnrestrictMember", ChatID: chatID, UserID: userID})
}

func (p *Platform) BanMember(_ context.Context, chatID, userID int64, until time.Time) error {
	return p.record(Call{Method: "BanMember", ChatID: chatID, UserID: userID, Until: until})
}

func (p *Platform) UnbanMember(_ context.Context, chatID, userID int64) error {
	return p.record(Call{Method: "UnbanMember", ChatID: chatID, UserID: userID})
}

func (p *Platform) PromoteMember(_ context.Context, chatID, userID int64, promote bool) error {
	method := "PromoteMember"
	if !promote {
		method = "DemoteMember"
	}
	return p.record(Call{Method: method, ChatID: chatID, UserID: userID})
}

func (p *Platform) SetAdminTitle(_ context.Context, chatID, userID int64, title string) error {
	return p.record(Call{Method: "SetAdminTitle", ChatID: chatID, UserID: userID, Text: title})
}

func (p *Platform) GetChatMember(_ context.Context, chatID, userID int64) (*api.ChatMember, error) {
	if err := p.record(Call{Method: "GetChatMember", ChatID: chatID, UserID: userID}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.Members[chatID][userID]; ok {
		return m, nil
	}
	return &api.ChatMember{User: &api.User{ID: userID}, Status: "member"}, nil
}

func (p *Platform) GetChatAdministrators(_ context.Context, chatID int64) ([]int64, error) {
	if err := p.record(Call{Method: "GetChatAdministrators", ChatID: chatID}); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.Admins[chatID]...), nil
}

func (p *Platform) GetMemberCount(_ context.Context, chatID int64) (int, error) {
	if err := p.record(Call{Method: "GetMemberCount", ChatID: chatID}); err != nil {
		return 0, err
	}
	return 42, nil
}

func (p *Platform) String() string {
	return fmt.Sprintf("%+v", p.Calls(""))
}
