package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
)

const reportColumns = `id, chat_id, reporter_id, reported_user_id, message_id, reason, status, handled_by, created_at, resolved_at`

func (c *sqliteClient) CreateReport(ctx context.Context, report *db.Report) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	report.Status = db.ReportPending
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO reports (chat_id, reporter_id, reported_user_id, message_id, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, report.ChatID, report.ReporterID, report.ReportedUserID, report.MessageID, report.Reason, report.Status, dbTime(report.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	report.ID = id
	return id, nil
}

func (c *sqliteClient) GetReport(ctx context.Context, id int64) (*db.Report, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var report db.Report
	err := c.db.GetContext(ctx, &report, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

func (c *sqliteClient) TransitionReport(ctx context.Context, id int64, status db.ReportState, handledBy int64, at time.Time) (bool, error) {
	if status == db.ReportPending {
		return false, fmt.Errorf("report %d: cannot transition to %s", id, status)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	ok, err := affected(c.db.ExecContext(ctx, `
		UPDATE reports SET status = ?, handled_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, status, handledBy, dbTime(at), id, db.ReportPending))
	if err != nil {
		return false, fmt.Errorf("transition report %d: %w", id, err)
	}
	return ok, nil
}

func (c *sqliteClient) ListPendingReports(ctx context.Context, chatID int64) ([]db.Report, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var reports []db.Report
	err := c.db.SelectContext(ctx, &reports, `
		SELECT `+reportColumns+` FROM reports WHERE chat_id = ? AND status = ? ORDER BY id
	`, chatID, db.ReportPending)
	return reports, err
}
