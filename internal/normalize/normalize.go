// Package normalize turns decoded feed rows into canonical domain rows.
package normalize

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/betenlace/affiliates/internal/bookmaker"
	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
)

// Source is the part of an adapter the normaliser needs.
type Source interface {
	Name() string
	ExposesPunters() bool
	DropZeroRows() bool
}

// Normalizer is stateless apart from the platform location dates are read
// in.
type Normalizer struct {
	loc *time.Location
	log *slog.Logger
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, log: slog.With("component", "normalize")}
}

// Normalize coerces raw rows from src. Rows carrying a currency must match
// expect. Anomalies that do not prevent processing are returned as
// warnings; unparseable values abort with an upstream error.
func (n *Normalizer) Normalize(src Source, raw []bookmaker.RawRow, expect currency.Code) ([]domain.Row, []string, error) {
	var (
		rows     []domain.Row
		warnings []string
		dropped  int
	)
	perPunter := src.ExposesPunters()

	for i, r := range raw {
		row, err := n.row(r)
		if err != nil {
			return nil, nil, &domain.UpstreamError{Source: src.Name(), Err: fmt.Errorf("row %d: %w", i+1, err)}
		}
		if cur := text(r[bookmaker.ColCurrency]); cur != "" {
			code, err := currency.Parse(cur)
			if err != nil {
				return nil, nil, &domain.UpstreamError{Source: src.Name(), Err: fmt.Errorf("row %d: %w", i+1, err)}
			}
			if code != expect {
				return nil, nil, &domain.UpstreamError{Source: src.Name(),
					Err: fmt.Errorf("row %d: currency %s, campaign reports in %s", i+1, code, expect)}
			}
		}

		if row.PromCode == "" {
			warnings = append(warnings, fmt.Sprintf("%s: row %d has no prom_code, skipped", src.Name(), i+1))
			continue
		}
		if perPunter && row.PunterID == "" {
			warnings = append(warnings, fmt.Sprintf("%s: row %d (%s) has no punter_id, skipped", src.Name(), i+1, row.PromCode))
			continue
		}
		if src.DropZeroRows() && zero(&row) {
			dropped++
			continue
		}

		if perPunter {
			warnings = append(warnings, anomalies(src.Name(), &row)...)
		}
		row.Seq = len(rows)
		rows = append(rows, row)
	}

	if dropped > 0 {
		n.log.Debug("dropped all-zero rows", "source", src.Name(), "count", dropped)
	}
	return rows, warnings, nil
}

func (n *Normalizer) row(r bookmaker.RawRow) (domain.Row, error) {
	var row domain.Row
	var err error

	row.PromCode = text(r[bookmaker.ColPromCode])
	row.PunterID = text(r[bookmaker.ColPunterID])

	date, err := parseTime(r[bookmaker.ColDate], n.loc)
	if err != nil {
		return row, fmt.Errorf("date: %w", err)
	}
	if date == nil {
		return row, fmt.Errorf("date: missing")
	}
	row.Date = midnight(*date)

	money := []struct {
		col string
		dst *float64
	}{
		{bookmaker.ColDeposit, &row.Deposit},
		{bookmaker.ColStake, &row.Stake},
		{bookmaker.ColRevenueShare, &row.RevenueShare},
		{bookmaker.ColNetRevenue, &row.NetRevenue},
	}
	for _, m := range money {
		if *m.dst, err = parseMoney(r[m.col]); err != nil {
			return row, fmt.Errorf("%s: %w", m.col, err)
		}
	}

	counts := []struct {
		col string
		dst **int
	}{
		{bookmaker.ColCPACount, &row.CPACount},
		{bookmaker.ColRegisteredCount, &row.RegisteredCount},
		{bookmaker.ColFirstDepositCount, &row.FirstDepositCount},
		{bookmaker.ColWageringCount, &row.WageringCount},
	}
	for _, c := range counts {
		if *c.dst, err = parseCount(r[c.col]); err != nil {
			return row, fmt.Errorf("%s: %w", c.col, err)
		}
	}

	times := []struct {
		col string
		dst **time.Time
	}{
		{bookmaker.ColRegisteredAt, &row.RegisteredAt},
		{bookmaker.ColFirstDepositAt, &row.FirstDepositAt},
		{bookmaker.ColCPAAt, &row.CPAAt},
	}
	for _, t := range times {
		if *t.dst, err = parseTime(r[t.col], n.loc); err != nil {
			return row, fmt.Errorf("%s: %w", t.col, err)
		}
	}
	return row, nil
}

func zero(r *domain.Row) bool {
	return r.Deposit == 0 && r.Stake == 0 && r.RevenueShare == 0 && r.NetRevenue == 0 &&
		domain.IntOr(r.CPACount, 0) == 0 &&
		domain.IntOr(r.RegisteredCount, 0) == 0 &&
		domain.IntOr(r.FirstDepositCount, 0) == 0 &&
		domain.IntOr(r.WageringCount, 0) == 0 &&
		r.RegisteredAt == nil && r.FirstDepositAt == nil
}

// anomalies flags counts above one on a row that stands for a single punter.
// cpa_count is clamped to 1 so the row can still be processed.
func anomalies(source string, r *domain.Row) []string {
	var out []string
	day := r.Date.Format("2006-01-02")
	if v := domain.IntOr(r.RegisteredCount, 0); v > 1 {
		out = append(out, fmt.Sprintf("%s: %s/%s registered_count %d on %s", source, r.PromCode, r.PunterID, v, day))
	}
	if v := domain.IntOr(r.FirstDepositCount, 0); v > 1 {
		out = append(out, fmt.Sprintf("%s: %s/%s first_deposit_count %d on %s", source, r.PromCode, r.PunterID, v, day))
	}
	if v := domain.IntOr(r.CPACount, 0); v > 1 {
		out = append(out, fmt.Sprintf("%s: %s/%s cpa_count %d on a per-punter feed on %s, counted as 1", source, r.PromCode, r.PunterID, v, day))
		one := 1
		r.CPACount = &one
	}
	return out
}
