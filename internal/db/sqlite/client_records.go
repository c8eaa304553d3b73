package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) AddRecord(ctx context.Context, record *db.ModerationRecord) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if record.IsGlobal {
		record.ChatID = db.GlobalChatID
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	var expiresAt any
	if record.ExpiresAt.Valid {
		expiresAt = dbTime(record.ExpiresAt.Time)
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO moderation_records (kind, chat_id, user_id, is_global, actor_id, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.Kind, record.ChatID, record.UserID, record.IsGlobal, record.ActorID, record.Reason, dbTime(record.CreatedAt), expiresAt)
	if err != nil {
		return 0, fmt.Errorf("insert %s record: %w", record.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	record.ID = id
	return id, nil
}

// CountWarnings pools chat-local and global warnings.
func (c *sqliteClient) CountWarnings(ctx context.Context, chatID, userID int64) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM moderation_records
		WHERE kind = ? AND user_id = ? AND (chat_id = ? OR is_global = 1)
	`, db.RecordWarning, userID, chatID)
	return count, err
}

func (c *sqliteClient) IsBanned(ctx context.Context, chatID, userID int64, now time.Time) (bool, error) {
	return c.hasActive(ctx, db.RecordBan, chatID, userID, now)
}

func (c *sqliteClient) IsMuted(ctx context.Context, chatID, userID int64, now time.Time) (bool, error) {
	return c.hasActive(ctx, db.RecordMute, chatID, userID, now)
}

func (c *sqliteClient) hasActive(ctx context.Context, kind db.RecordKind, chatID, userID int64, now time.Time) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM moderation_records
		WHERE kind = ? AND user_id = ? AND (chat_id = ? OR is_global = 1)
		AND (expires_at IS NULL OR expires_at > ?)
	`, kind, userID, chatID, dbTime(now))
	if err != nil {
		return false, fmt.Errorf("check %s of user %d: %w", kind, userID, err)
	}
	return count > 0, nil
}

// DeleteRecords removes records of a kind for a chat; db.GlobalChatID addresses global records only.
func (c *sqliteClient) DeleteRecords(ctx context.Context, kind db.RecordKind, chatID, userID int64) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM moderation_records WHERE kind = ? AND chat_id = ? AND user_id = ?
	`, kind, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete %s records: %w", kind, err)
	}
	return res.RowsAffected()
}

func (c *sqliteClient) DeleteLatestWarning(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `
		DELETE FROM moderation_records WHERE id = (
			SELECT id FROM moderation_records
			WHERE kind = ? AND chat_id = ? AND user_id = ?
			ORDER BY created_at DESC, id DESC LIMIT 1
		)
	`, db.RecordWarning, chatID, userID))
}
