package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) UpsertWordFilter(ctx context.Context, filter *db.WordFilter) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if filter.CreatedAt.IsZero() {
		filter.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO word_filters (chat_id, pattern, is_regex, action, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, pattern) DO UPDATE SET
			is_regex = excluded.is_regex,
			action = excluded.action
	`, filter.ChatID, filter.Pattern, filter.IsRegex, filter.Action, filter.CreatedBy, dbTime(filter.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert word filter %q: %w", filter.Pattern, err)
	}
	return nil
}

func (c *sqliteClient) DeleteWordFilter(ctx context.Context, chatID int64, pattern string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM word_filters WHERE chat_id = ? AND pattern = ?`, chatID, pattern))
}

func (c *sqliteClient) ListWordFilters(ctx context.Context, chatID int64) ([]db.WordFilter, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var filters []db.WordFilter
	err := c.db.SelectContext(ctx, &filters, `
		SELECT id, chat_id, pattern, is_regex, action, created_by, created_at
		FROM word_filters WHERE chat_id = ? ORDER BY id
	`, chatID)
	return filters, err
}

func (c *sqliteClient) UpsertURLFilter(ctx context.Context, filter *db.URLFilter) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if filter.CreatedAt.IsZero() {
		filter.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO url_filters (chat_id, domain, is_whitelist, action, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, domain) DO UPDATE SET
			is_whitelist = excluded.is_whitelist,
			action = excluded.action
	`, filter.ChatID, filter.Domain, filter.IsWhitelist, filter.Action, filter.CreatedBy, dbTime(filter.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert url filter %q: %w", filter.Domain, err)
	}
	return nil
}

func (c *sqliteClient) DeleteURLFilter(ctx context.Context, chatID int64, domain string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM url_filters WHERE chat_id = ? AND domain = ?`, chatID, domain))
}

func (c *sqliteClient) ListURLFilters(ctx context.Context, chatID int64) ([]db.URLFilter, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var filters []db.URLFilter
	err := c.db.SelectContext(ctx, &filters, `
		SELECT id, chat_id, domain, is_whitelist, action, created_by, created_at
		FROM url_filters WHERE chat_id = ? ORDER BY id
	`, chatID)
	return filters, err
}

func (c *sqliteClient) UpsertMediaLock(ctx context.Context, lock *db.MediaLock) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if lock.CreatedAt.IsZero() {
		lock.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO media_locks (chat_id, media_type, action, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, media_type) DO UPDATE SET action = excluded.action
	`, lock.ChatID, lock.MediaType, lock.Action, lock.CreatedBy, dbTime(lock.CreatedAt))
	if err != nil {
		return fmt.Errorf("lock %s: %w", lock.MediaType, err)
	}
	return nil
}

func (c *sqliteClient) DeleteMediaLock(ctx context.Context, chatID int64, mediaType db.MediaType) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM media_locks WHERE chat_id = ? AND media_type = ?`, chatID, mediaType))
}

func (c *sqliteClient) GetMediaLock(ctx context.Context, chatID int64, mediaType db.MediaType) (*db.MediaLock, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var lock db.MediaLock
	err := c.db.GetContext(ctx, &lock, `
		SELECT chat_id, media_type, action, created_by, created_at
		FROM media_locks WHERE chat_id = ? AND media_type = ?
	`, chatID, mediaType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}

func (c *sqliteClient) ListMediaLocks(ctx context.Context, chatID int64) ([]db.MediaLock, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var locks []db.MediaLock
	err := c.db.SelectContext(ctx, &locks, `
		SELECT chat_id, media_type, action, created_by, created_at
		FROM media_locks WHERE chat_id = ? ORDER BY media_type
	`, chatID)
	return locks, err
}
