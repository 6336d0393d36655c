package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
)

func (q *Queries) InsertClickEvent(ctx context.Context, e *domain.ClickEvent) error {
	_, err := q.InsertClickEvents(ctx, []domain.ClickEvent{*e})
	return err
}

// InsertClickEvents stores raw click-tracking events with one prepared
// statement. Events whose id already exists are ignored; the number of new
// rows is returned.
func (q *Queries) InsertClickEvents(ctx context.Context, events []domain.ClickEvent) (int, error) {
	stmt, err := q.db.PrepareContext(ctx,
		"INSERT OR IGNORE INTO click_events (id, link_id, created_at, count) VALUES (?,?,?,?)")
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range events {
		e := &events[i]
		e.ID = newID(e.ID)
		if e.Count == 0 {
			e.Count = 1
		}
		res, err := stmt.ExecContext(ctx, e.ID, e.LinkID, formatTime(e.CreatedAt), e.Count)
		if err != nil {
			return inserted, fmt.Errorf("insert click %d: %w", i, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

// ListDailyMissingClicks returns house daily rows whose click count is null.
func (q *Queries) ListDailyMissingClicks(ctx context.Context) ([]domain.BetenlaceDailyReport, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+dailyColumns+" FROM betenlace_daily_reports WHERE click_count IS NULL ORDER BY link_id, created_at")
	if err != nil {
		return nil, fmt.Errorf("query missing clicks: %w", err)
	}
	defer rows.Close()

	var out []domain.BetenlaceDailyReport
	for rows.Next() {
		d, err := q.scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily report: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListClickEvents returns the click events of the given links within
// [from, to).
func (q *Queries) ListClickEvents(ctx context.Context, linkIDs []string, from, to time.Time) ([]domain.ClickEvent, error) {
	if len(linkIDs) == 0 {
		return nil, nil
	}
	args := append(stringArgs(linkIDs), formatTime(from), formatTime(to))
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, link_id, created_at, count FROM click_events WHERE link_id IN ("+
			placeholders(len(linkIDs))+") AND created_at >= ? AND created_at < ?", args...)
	if err != nil {
		return nil, fmt.Errorf("query click events: %w", err)
	}
	defer rows.Close()

	var out []domain.ClickEvent
	for rows.Next() {
		var e domain.ClickEvent
		var created string
		if err := rows.Scan(&e.ID, &e.LinkID, &created, &e.Count); err != nil {
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		e.CreatedAt = q.parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *Queries) SetClickCount(ctx context.Context, dailyID string, count int) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE betenlace_daily_reports SET click_count = ? WHERE id = ?", count, dailyID)
	return err
}
