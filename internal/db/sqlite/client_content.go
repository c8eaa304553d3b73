package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

func (c *sqliteClient) SaveNote(ctx context.Context, note *db.Note) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO notes (chat_id, name, content, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, name) DO UPDATE SET
			content = excluded.content,
			created_by = excluded.created_by,
			created_at = excluded.created_at
	`, note.ChatID, note.Name, note.Content, note.CreatedBy, dbTime(note.CreatedAt))
	if err != nil {
		return fmt.Errorf("save note %q: %w", note.Name, err)
	}
	return nil
}

func (c *sqliteClient) GetNote(ctx context.Context, chatID int64, name string) (*db.Note, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var note db.Note
	err := c.db.GetContext(ctx, &note, `
		SELECT chat_id, name, content, created_by, created_at FROM notes WHERE chat_id = ? AND name = ?
	`, chatID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

func (c *sqliteClient) DeleteNote(ctx context.Context, chatID int64, name string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM notes WHERE chat_id = ? AND name = ?`, chatID, name))
}

func (c *sqliteClient) ListNotes(ctx context.Context, chatID int64) ([]string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var names []string
	err := c.db.SelectContext(ctx, &names, `SELECT name FROM notes WHERE chat_id = ? ORDER BY name`, chatID)
	return names, err
}

func (c *sqliteClient) SetRules(ctx context.Context, rules *db.Rules) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if rules.UpdatedAt.IsZero() {
		rules.UpdatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO rules (chat_id, content, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			content = excluded.content,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`, rules.ChatID, rules.Content, rules.UpdatedBy, dbTime(rules.UpdatedAt))
	if err != nil {
		return fmt.Errorf("set rules: %w", err)
	}
	return nil
}

func (c *sqliteClient) GetRules(ctx context.Context, chatID int64) (*db.Rules, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var rules db.Rules
	err := c.db.GetContext(ctx, &rules, `
		SELECT chat_id, content, updated_by, updated_at FROM rules WHERE chat_id = ?
	`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rules, nil
}

func (c *sqliteClient) DeleteRules(ctx context.Context, chatID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM rules WHERE chat_id = ?`, chatID))
}

func (c *sqliteClient) SaveCommand(ctx context.Context, cmd *db.CustomCommand) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO custom_commands (chat_id, command, response, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, command) DO UPDATE SET
			response = excluded.response,
			created_by = excluded.created_by
	`, cmd.ChatID, cmd.Command, cmd.Response, cmd.CreatedBy, dbTime(cmd.CreatedAt))
	if err != nil {
		return fmt.Errorf("save command %q: %w", cmd.Command, err)
	}
	return nil
}

func (c *sqliteClient) GetCommand(ctx context.Context, chatID int64, command string) (*db.CustomCommand, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var cmd db.CustomCommand
	err := c.db.GetContext(ctx, &cmd, `
		SELECT chat_id, command, response, created_by, created_at
		FROM custom_commands WHERE chat_id = ? AND command = ?
	`, chatID, command)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cmd, nil
}

func (c *sqliteClient) DeleteCommand(ctx context.Context, chatID int64, command string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return affected(c.db.ExecContext(ctx, `DELETE FROM custom_commands WHERE chat_id = ? AND command = ?`, chatID, command))
}

func (c *sqliteClient) ListCommands(ctx context.Context, chatID int64) ([]string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var commands []string
	err := c.db.SelectContext(ctx, &commands, `SELECT command FROM custom_commands WHERE chat_id = ? ORDER BY command`, chatID)
	return commands, err
}
