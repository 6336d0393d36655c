package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05Z"

	maxTxAttempts = 3
)

// DBTX is the subset of *sql.DB and *sql.Tx the queries need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Queries runs every statement against either the database or an open
// transaction. Date columns are interpreted in loc.
type Queries struct {
	db  DBTX
	loc *time.Location
}

// Store owns the database handle and hands out transactional Queries.
type Store struct {
	*Queries
	sqlDB *sql.DB
}

func NewStore(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{Queries: &Queries{db: db, loc: loc}, sqlDB: db}
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.sqlDB.PingContext(ctx) }

// Location is the platform time zone dates are stored in.
func (q *Queries) Location() *time.Location { return q.loc }

// WithTx runs fn inside one transaction. Busy or locked errors from SQLite
// are retried a bounded number of times; any other error rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		slog.Warn("database busy, retrying transaction", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx, loc: s.loc}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// --- helpers ---

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// prefixColumns qualifies every column of a comma separated list with alias.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

// suffixScanner scans a row whose leading columns belong to one scan helper
// and whose trailing columns go to extra.
type suffixScanner struct {
	rows  *sql.Rows
	extra []any
}

func (s *suffixScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.extra...)...)
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatNullableDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatDate(*t)
}

func (q *Queries) parseDate(s string) time.Time {
	t, err := time.ParseInLocation(dateLayout, s, q.loc)
	if err != nil {
		// Tolerate full timestamps in date columns.
		if ts, err := time.Parse(timeLayout, s); err == nil {
			return ts.In(q.loc)
		}
	}
	return t
}

func (q *Queries) parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t.In(q.loc)
}

func (q *Queries) nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := q.parseTime(ns.String)
	return &t
}

func (q *Queries) nullDate(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return q.parseDate(ns.String)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
