package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) AddAdmin(ctx context.Context, admin *db.Admin) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO admins (chat_id, user_id, added_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET added_by = excluded.added_by
	`, admin.ChatID, admin.UserID, admin.AddedBy, dbTime(admin.CreatedAt))
	if err != nil {
		return fmt.Errorf("add admin %d to chat %d: %w", admin.UserID, admin.ChatID, err)
	}
	return nil
}

func (c *sqliteClient) RemoveAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM admins WHERE chat_id = ? AND user_id = ?`, chatID, userID))
}

func (c *sqliteClient) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admins WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return count > 0, err
}

func (c *sqliteClient) ListAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var userIDs []int64
	err := c.db.SelectContext(ctx, &userIDs, `SELECT user_id FROM admins WHERE chat_id = ? ORDER BY created_at`, chatID)
	return userIDs, err
}

func (c *sqliteClient) AddWhitelist(ctx context.Context, entry *db.WhitelistEntry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry.IsGlobal {
		entry.ChatID = db.GlobalChatID
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO whitelist (chat_id, user_id, is_global, added_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET added_by = excluded.added_by
	`, entry.ChatID, entry.UserID, entry.IsGlobal, entry.AddedBy, dbTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("whitelist user %d: %w", entry.UserID, err)
	}
	return nil
}

// RemoveWhitelist drops the entry for the given chat; db.GlobalChatID addresses the global entry.
func (c *sqliteClient) RemoveWhitelist(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM whitelist WHERE chat_id = ? AND user_id = ?`, chatID, userID))
}

func (c *sqliteClient) IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM whitelist
		WHERE user_id = ? AND (chat_id = ? OR is_global = 1)
	`, userID, chatID)
	return count > 0, err
}

func (c *sqliteClient) ListWhitelist(ctx context.Context, chatID int64, limit int) ([]db.WhitelistEntry, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var entries []db.WhitelistEntry
	err := c.db.SelectContext(ctx, &entries, `
		SELECT * FROM whitelist
		WHERE chat_id = ? OR is_global = 1
		ORDER BY created_at DESC, user_id
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list whitelist of chat %d: %w", chatID, err)
	}
	return entries, nil
}
