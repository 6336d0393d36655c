package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
)

// rates are persisted as {"USD":{"COP":4000.5,...},...}; unknown cells are
// omitted.
type ratesJSON map[string]map[string]float64

func encodeRates(m domain.RateMatrix) (string, error) {
	out := ratesJSON{}
	for _, from := range currency.All() {
		for _, to := range currency.All() {
			if r := m[from][to]; r != 0 && from != to {
				if out[from.String()] == nil {
					out[from.String()] = map[string]float64{}
				}
				out[from.String()][to.String()] = r
			}
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func decodeRates(s string) (domain.RateMatrix, error) {
	var m domain.RateMatrix
	var in ratesJSON
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return m, err
	}
	for fromCode, row := range in {
		from, err := currency.Parse(fromCode)
		if err != nil {
			continue
		}
		for toCode, r := range row {
			to, err := currency.Parse(toCode)
			if err != nil {
				continue
			}
			m[from][to] = r
		}
	}
	return m, nil
}

func (q *Queries) InsertFxSnapshot(ctx context.Context, s *domain.FxSnapshot) error {
	s.ID = newID(s.ID)
	rates, err := encodeRates(s.Rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		"INSERT INTO fx_snapshots (id, created_at, fx_percentage, rates) VALUES (?,?,?,?)",
		s.ID, formatTime(s.CreatedAt), s.FxPercentage, rates)
	if err != nil {
		return fmt.Errorf("insert fx snapshot: %w", err)
	}
	return nil
}

func (q *Queries) scanFx(row scanner) (*domain.FxSnapshot, error) {
	var s domain.FxSnapshot
	var created, rates string
	if err := row.Scan(&s.ID, &created, &s.FxPercentage, &rates); err != nil {
		return nil, err
	}
	s.CreatedAt = q.parseTime(created)
	m, err := decodeRates(rates)
	if err != nil {
		return nil, fmt.Errorf("decode rates of snapshot %s: %w", s.ID, err)
	}
	s.Rates = m
	return &s, nil
}

func (q *Queries) fxOne(ctx context.Context, query string, args ...any) (*domain.FxSnapshot, error) {
	s, err := q.scanFx(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FirstFxSnapshotFrom returns the earliest snapshot created at or after t,
// or nil.
func (q *Queries) FirstFxSnapshotFrom(ctx context.Context, t time.Time) (*domain.FxSnapshot, error) {
	return q.fxOne(ctx,
		`SELECT id, created_at, fx_percentage, rates FROM fx_snapshots
		 WHERE created_at >= ? ORDER BY created_at ASC LIMIT 1`, formatTime(t))
}

// LastFxSnapshotUntil returns the latest snapshot created at or before t,
// or nil.
func (q *Queries) LastFxSnapshotUntil(ctx context.Context, t time.Time) (*domain.FxSnapshot, error) {
	return q.fxOne(ctx,
		`SELECT id, created_at, fx_percentage, rates FROM fx_snapshots
		 WHERE created_at <= ? ORDER BY created_at DESC LIMIT 1`, formatTime(t))
}

// FxSnapshotExists reports whether a snapshot was written within [from, to).
func (q *Queries) FxSnapshotExists(ctx context.Context, from, to time.Time) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fx_snapshots WHERE created_at >= ? AND created_at < ?",
		formatTime(from), formatTime(to)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count fx snapshots: %w", err)
	}
	return n > 0, nil
}
