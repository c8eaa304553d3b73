package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

func (c *sqliteClient) UpsertBanlist(ctx context.Context, userIDs []int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin banlist transaction: %w", err)
	}
	rollback := true
	defer func() {
		if !rollback {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.WithField("object", "sqlite").WithField("error", err.Error()).Error("cant rollback banlist transaction")
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO banlist (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare banlist insert: %w", err)
	}
	defer stmt.Close()

	for _, userID := range userIDs {
		if _, err := stmt.ExecContext(ctx, userID); err != nil {
			return fmt.Errorf("insert banlist user %d: %w", userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit banlist: %w", err)
	}
	rollback = false
	return nil
}

func (c *sqliteClient) GetBanlist(ctx context.Context) (map[int64]struct{}, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var userIDs []int64
	if err := c.db.SelectContext(ctx, &userIDs, `SELECT user_id FROM banlist`); err != nil {
		return nil, fmt.Errorf("select banlist: %w", err)
	}
	results := make(map[int64]struct{}, len(userIDs))
	for _, userID := range userIDs {
		results[userID] = struct{}{}
	}
	return results, nil
}
