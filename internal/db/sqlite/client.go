package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/resources"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

var _ db.Client = (*sqliteClient)(nil)

func NewSQLiteClient(ctx context.Context, dir, file string) (*sqliteClient, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := filepath.Join(dir, file) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	dbx, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	dbx.SetMaxOpenConns(1)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	if n > 0 {
		log.WithField("object", "sqlite").Infof("applied %d migrations", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}

func (c *sqliteClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	res := &db.Settings{}
	err := c.db.GetContext(ctx, res, `SELECT * FROM chats WHERE id = ?`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settings for chat %d: %w", chatID, err)
	}
	return res, nil
}

func (c *sqliteClient) SetSettings(ctx context.Context, settings *db.Settings) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO chats (
			id, title, language, timezone, night_mode_enabled, night_mode_start, night_mode_end,
			slow_mode_enabled, slow_mode_delay, auto_delete_commands, silenced, under_attack,
			antispam_enabled, captcha_enabled, captcha_timeout, welcome_enabled, welcome_message,
			welcome_delete_after, goodbye_enabled, goodbye_message, reports_enabled, report_cooldown,
			max_warnings
		) VALUES (
			:id, :title, :language, :timezone, :night_mode_enabled, :night_mode_start, :night_mode_end,
			:slow_mode_enabled, :slow_mode_delay, :auto_delete_commands, :silenced, :under_attack,
			:antispam_enabled, :captcha_enabled, :captcha_timeout, :welcome_enabled, :welcome_message,
			:welcome_delete_after, :goodbye_enabled, :goodbye_message, :reports_enabled, :report_cooldown,
			:max_warnings
		)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			language = excluded.language,
			timezone = excluded.timezone,
			night_mode_enabled = excluded.night_mode_enabled,
			night_mode_start = excluded.night_mode_start,
			night_mode_end = excluded.night_mode_end,
			slow_mode_enabled = excluded.slow_mode_enabled,
			slow_mode_delay = excluded.slow_mode_delay,
			auto_delete_commands = excluded.auto_delete_commands,
			silenced = excluded.silenced,
			under_attack = excluded.under_attack,
			antispam_enabled = excluded.antispam_enabled,
			captcha_enabled = excluded.captcha_enabled,
			captcha_timeout = excluded.captcha_timeout,
			welcome_enabled = excluded.welcome_enabled,
			welcome_message = excluded.welcome_message,
			welcome_delete_after = excluded.welcome_delete_after,
			goodbye_enabled = excluded.goodbye_enabled,
			goodbye_message = excluded.goodbye_message,
			reports_enabled = excluded.reports_enabled,
			report_cooldown = excluded.report_cooldown,
			max_warnings = excluded.max_warnings
	`
	if _, err := c.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("set settings for chat %d: %w", settings.ID, err)
	}
	return nil
}

func (c *sqliteClient) ListChatIDs(ctx context.Context) ([]int64, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var ids []int64
	if err := c.db.SelectContext(ctx, &ids, `SELECT id FROM chats ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return ids, nil
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
