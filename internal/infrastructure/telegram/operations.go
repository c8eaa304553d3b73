// Package telegram implements bot.Platform over the Telegram Bot API with
// client-side rate limiting and a circuit breaker.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Requester is the part of *api.BotAPI used here.
type Requester interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
	GetChatAdministrators(config api.ChatAdministratorsConfig) ([]api.ChatMember, error)
}

type Options struct {
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// Operations provides common Telegram bot operations
type Operations struct {
	bot     Requester
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *log.Entry
}

// NewOperations creates a new Operations instance
func NewOperations(bot Requester, opts Options) *Operations {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 25
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	logger := log.WithField("object", "TelegramOperations")
	failures := opts.BreakerFailures
	return &Operations{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "telegram",
			MaxRequests: 1,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(log.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
			IsSuccessful: isSuccessful,
		}),
	}
}

// isSuccessful treats API-level rejections as a healthy remote; only transport
// failures count toward tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *api.Error
	return errors.As(err, &apiErr)
}

func (o *Operations) call(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return o.breaker.Execute(fn)
}

func (o *Operations) request(ctx context.Context, c api.Chattable) (*api.APIResponse, error) {
	res, err := o.call(ctx, func() (any, error) {
		return o.bot.Request(c)
	})
	if err != nil {
		return nil, err
	}
	resp, _ := res.(*api.APIResponse)
	return resp, nil
}

func memberConfig(chatID, userID int64) api.ChatMemberConfig {
	return api.ChatMemberConfig{
		ChatConfig: api.ChatConfig{
			ChatID: chatID,
		},
		UserID: userID,
	}
}

func (o *Operations) Send(ctx context.Context, c api.Chattable) (api.Message, error) {
	res, err := o.call(ctx, func() (any, error) {
		return o.bot.Send(c)
	})
	if err != nil {
		return api.Message{}, fmt.Errorf("failed to send message: %w", err)
	}
	msg, _ := res.(api.Message)
	return msg, nil
}

// DeleteMessage deletes a message from a chat
func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := o.request(ctx, api.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (o *Operations) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = api.ModeHTML
	if _, err := o.request(ctx, edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (o *Operations) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := api.NewCallback(callbackID, text)
	if alert {
		cb = api.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := o.request(ctx, cb); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// RestrictMember revokes every send permission until the given time.
// A zero until means forever.
func (o *Operations) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: memberConfig(chatID, userID),
		UntilDate:        unixOrZero(until),
		Permissions: &api.ChatPermissions{
			CanSendMessages:       false,
			CanSendAudios:         false,
			CanSendDocuments:      false,
			CanSendPhotos:         false,
			CanSendVideos:         false,
			CanSendVideoNotes:     false,
			CanSendVoiceNotes:     false,
			CanSendPolls:          false,
			CanSendOtherMessages:  false,
			CanAddWebPagePreviews: false,
			CanChangeInfo:         false,
			CanInviteUsers:        false,
			CanPinMessages:        false,
			CanManageTopics:       false,
		},
	}
	if _, err := o.request(ctx, config); err != nil {
		return fmt.Errorf("failed to restrict user: %w", err)
	}
	return nil
}

// UnrestrictMember restores regular member permissions.
func (o *Operations) UnrestrictMember(ctx context.Context, chatID, userID int64) error {
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: memberConfig(chatID, userID),
		Permissions: &api.ChatPermissions{
			CanSendMessages:       true,
			CanSendAudios:         true,
			CanSendDocuments:      true,
			CanSendPhotos:         true,
			CanSendVideos:         true,
			CanSendVideoNotes:     true,
			CanSendVoiceNotes:     true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
			CanInviteUsers:        true,
		},
	}
	if _, err := o.request(ctx, config); err != nil {
		return fmt.Errorf("failed to unrestrict user: %w", err)
	}
	return nil
}

// BanMember bans a user from a chat. A zero until means forever.
func (o *Operations) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	config := api.BanChatMemberConfig{
		ChatMemberConfig: memberConfig(chatID, userID),
		UntilDate:        unixOrZero(until),
		RevokeMessages:   false,
	}
	if _, err := o.request(ctx, config); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

func (o *Operations) UnbanMember(ctx context.Context, chatID, userID int64) error {
	config := api.UnbanChatMemberConfig{
		ChatMemberConfig: memberConfig(chatID, userID),
		OnlyIfBanned:     true,
	}
	if _, err := o.request(ctx, config); err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	return nil
}

func (o *Operations) PromoteMember(ctx context.Context, chatID, userID int64, promote bool) error {
	config := api.PromoteChatMemberConfig{
		ChatMemberConfig:   memberConfig(chatID, userID),
		CanManageChat:      promote,
		CanChangeInfo:      promote,
		CanDeleteMessages:  promote,
		CanInviteUsers:     promote,
		CanRestrictMembers: promote,
		CanPinMessages:     promote,
	}
	if _, err := o.request(ctx, config); err != nil {
		return fmt.Errorf("failed to change admin rights: %w", err)
	}
	return nil
}

func (o *Operations) SetAdminTitle(ctx context.Context, chatID, userID int64, title string) error {
	config := api.SetChatAdministratorCustomTitle{
		ChatMemberConfig: memberConfig(chatID, userID),
		CustomTitle:      title,
	}
	if _, err := o.request(ctx, config); err != nil {
		return fmt.Errorf("failed to set admin title: %w", err)
	}
	return nil
}

func (o *Operations) GetChatMember(ctx context.Context, chatID, userID int64) (*api.ChatMember, error) {
	res, err := o.call(ctx, func() (any, error) {
		return o.bot.GetChatMember(api.GetChatMemberConfig{
			ChatConfigWithUser: api.ChatConfigWithUser{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat member: %w", err)
	}
	member, _ := res.(api.ChatMember)
	return &member, nil
}

// GetChatAdministrators returns ids of the human administrators of a chat.
func (o *Operations) GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	res, err := o.call(ctx, func() (any, error) {
		return o.bot.GetChatAdministrators(api.ChatAdministratorsConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat administrators: %w", err)
	}
	members, _ := res.([]api.ChatMember)
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.IsBot {
			continue
		}
		ids = append(ids, m.User.ID)
	}
	return ids, nil
}

func (o *Operations) GetMemberCount(ctx context.Context, chatID int64) (int, error) {
	resp, err := o.request(ctx, api.ChatMemberCountConfig{
		ChatConfig: api.ChatConfig{
			ChatID: chatID,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get member count: %w", err)
	}
	var count int
	if resp != nil {
		if err := json.Unmarshal(resp.Result, &count); err != nil {
			return 0, fmt.Errorf("failed to decode member count: %w", err)
		}
	}
	return count, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
