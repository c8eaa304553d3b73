package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

const captchaColumns = `chat_id, user_id, token, answer, challenge_message_id, join_time, expires_at`

func (c *sqliteClient) UpsertPendingCaptcha(ctx context.Context, captcha *db.PendingCaptcha) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pending_captchas (`+captchaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			token = excluded.token,
			answer = excluded.answer,
			challenge_message_id = excluded.challenge_message_id,
			join_time = excluded.join_time,
			expires_at = excluded.expires_at
	`,
		captcha.ChatID,
		captcha.UserID,
		captcha.Token,
		captcha.Answer,
		captcha.ChallengeMessageID,
		dbTime(captcha.JoinTime),
		dbTime(captcha.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert pending captcha: %w", err)
	}
	return nil
}

func (c *sqliteClient) GetPendingCaptcha(ctx context.Context, chatID, userID int64) (*db.PendingCaptcha, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var captcha db.PendingCaptcha
	err := c.db.GetContext(ctx, &captcha, `
		SELECT `+captchaColumns+` FROM pending_captchas WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &captcha, nil
}

func (c *sqliteClient) TakePendingCaptcha(ctx context.Context, chatID, userID int64, token string) (*db.PendingCaptcha, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("take pending captcha: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var captcha db.PendingCaptcha
	err = tx.GetContext(ctx, &captcha, `
		SELECT `+captchaColumns+` FROM pending_captchas WHERE chat_id = ? AND user_id = ? AND token = ?
	`, chatID, userID, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("take pending captcha: %w", err)
	}

	ok, err := affected(tx.ExecContext(ctx, `
		DELETE FROM pending_captchas WHERE chat_id = ? AND user_id = ? AND token = ?
	`, chatID, userID, token))
	if err != nil {
		return nil, fmt.Errorf("take pending captcha: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("take pending captcha: %w", err)
	}
	return &captcha, nil
}

func (c *sqliteClient) ListPendingCaptchas(ctx context.Context) ([]db.PendingCaptcha, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var captchas []db.PendingCaptcha
	err := c.db.SelectContext(ctx, &captchas, `SELECT `+captchaColumns+` FROM pending_captchas ORDER BY expires_at`)
	return captchas, err
}

func (c *sqliteClient) ListExpiredCaptchas(ctx context.Context, now time.Time) ([]db.PendingCaptcha, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var captchas []db.PendingCaptcha
	err := c.db.SelectContext(ctx, &captchas, `
		SELECT `+captchaColumns+` FROM pending_captchas WHERE expires_at <= ? ORDER BY expires_at
	`, dbTime(now))
	return captchas, err
}
