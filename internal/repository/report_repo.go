package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
)

// --- house monthly (betenlace_cpa) ---

const monthlyColumns = `b.id, b.link_id, b.period, b.deposit, b.stake, b.fixed_income,
	b.net_revenue, b.revenue_share, b.registered_count, b.cpa_count,
	b.first_deposit_count, b.wagering_count`

type monthlyScan struct {
	id, linkID, period                          sql.NullString
	deposit, stake, fixedIncome, netRevenue, rs sql.NullFloat64
	registered, cpa, firstDeposit, wagering     sql.NullInt64
}

func (s *monthlyScan) dest() []any {
	return []any{&s.id, &s.linkID, &s.period, &s.deposit, &s.stake, &s.fixedIncome,
		&s.netRevenue, &s.rs, &s.registered, &s.cpa, &s.firstDeposit, &s.wagering}
}

func (s *monthlyScan) toDomain(q *Queries) *domain.BetenlaceCPA {
	if !s.id.Valid {
		return nil
	}
	return &domain.BetenlaceCPA{
		ID:     s.id.String,
		LinkID: s.linkID.String,
		Period: q.nullDate(s.period),
		Totals: domain.Totals{
			Deposit:           s.deposit.Float64,
			Stake:             s.stake.Float64,
			FixedIncome:       s.fixedIncome.Float64,
			NetRevenue:        s.netRevenue.Float64,
			RevenueShare:      s.rs.Float64,
			RegisteredCount:   int(s.registered.Int64),
			CPACount:          int(s.cpa.Int64),
			FirstDepositCount: int(s.firstDeposit.Int64),
			WageringCount:     int(s.wagering.Int64),
		},
	}
}

// UpsertMonthly writes the link's month-to-date row.
func (q *Queries) UpsertMonthly(ctx context.Context, m *domain.BetenlaceCPA) error {
	m.ID = newID(m.ID)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO betenlace_cpa (id, link_id, period, deposit, stake, fixed_income,
		 net_revenue, revenue_share, registered_count, cpa_count, first_deposit_count, wagering_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(link_id) DO UPDATE SET
			period = excluded.period,
			deposit = excluded.deposit,
			stake = excluded.stake,
			fixed_income = excluded.fixed_income,
			net_revenue = excluded.net_revenue,
			revenue_share = excluded.revenue_share,
			registered_count = excluded.registered_count,
			cpa_count = excluded.cpa_count,
			first_deposit_count = excluded.first_deposit_count,
			wagering_count = excluded.wagering_count`,
		m.ID, m.LinkID, formatNullableDate(&m.Period), m.Deposit, m.Stake, m.FixedIncome,
		m.NetRevenue, m.RevenueShare, m.RegisteredCount, m.CPACount, m.FirstDepositCount,
		m.WageringCount,
	)
	if err != nil {
		return fmt.Errorf("upsert monthly for link %s: %w", m.LinkID, err)
	}
	return nil
}

func (q *Queries) GetMonthly(ctx context.Context, linkID string) (*domain.BetenlaceCPA, error) {
	var s monthlyScan
	err := q.db.QueryRowContext(ctx,
		"SELECT "+monthlyColumns+" FROM betenlace_cpa b WHERE b.link_id = ?", linkID,
	).Scan(s.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly %s: %w", linkID, err)
	}
	return s.toDomain(q), nil
}

// --- house daily ---

const dailyColumns = `id, link_id, created_at, currency_condition, currency_fixed_income,
	fixed_income_unitary, deposit, stake, fixed_income, net_revenue, revenue_share,
	registered_count, cpa_count, first_deposit_count, wagering_count, click_count, fx_partner_id`

func (q *Queries) scanDaily(row scanner) (*domain.BetenlaceDailyReport, error) {
	var d domain.BetenlaceDailyReport
	var date, condition, fixed string
	var clicks sql.NullInt64
	var fxID sql.NullString
	err := row.Scan(&d.ID, &d.LinkID, &date, &condition, &fixed, &d.FixedIncomeUnitary,
		&d.Deposit, &d.Stake, &d.FixedIncome, &d.NetRevenue, &d.RevenueShare,
		&d.RegisteredCount, &d.CPACount, &d.FirstDepositCount, &d.WageringCount,
		&clicks, &fxID)
	if err != nil {
		return nil, err
	}
	d.Date = q.parseDate(date)
	d.CurrencyCondition = codeOf(condition)
	d.CurrencyFixedIncome = codeOf(fixed)
	d.ClickCount = nullInt(clicks)
	d.FxPartnerID = nullString(fxID)
	return &d, nil
}

// GetDailyReports returns the house daily rows of the given links on date,
// keyed by link id.
func (q *Queries) GetDailyReports(ctx context.Context, linkIDs []string, date time.Time) (map[string]*domain.BetenlaceDailyReport, error) {
	out := make(map[string]*domain.BetenlaceDailyReport, len(linkIDs))
	if len(linkIDs) == 0 {
		return out, nil
	}
	args := append(stringArgs(linkIDs), formatDate(date))
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+dailyColumns+" FROM betenlace_daily_reports WHERE link_id IN ("+
			placeholders(len(linkIDs))+") AND created_at = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("query daily reports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := q.scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily report: %w", err)
		}
		out[d.LinkID] = d
	}
	return out, rows.Err()
}

// UpsertDaily overwrites the day's aggregate for a link. The click count is
// owned by the backfill and is left untouched on conflict.
func (q *Queries) UpsertDaily(ctx context.Context, d *domain.BetenlaceDailyReport) error {
	d.ID = newID(d.ID)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO betenlace_daily_reports (`+dailyColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(link_id, created_at) DO UPDATE SET
			currency_condition = excluded.currency_condition,
			currency_fixed_income = excluded.currency_fixed_income,
			fixed_income_unitary = excluded.fixed_income_unitary,
			deposit = excluded.deposit,
			stake = excluded.stake,
			fixed_income = excluded.fixed_income,
			net_revenue = excluded.net_revenue,
			revenue_share = excluded.revenue_share,
			registered_count = excluded.registered_count,
			cpa_count = excluded.cpa_count,
			first_deposit_count = excluded.first_deposit_count,
			wagering_count = excluded.wagering_count,
			fx_partner_id = excluded.fx_partner_id`,
		d.ID, d.LinkID, formatDate(d.Date), d.CurrencyCondition.String(),
		d.CurrencyFixedIncome.String(), d.FixedIncomeUnitary, d.Deposit, d.Stake,
		d.FixedIncome, d.NetRevenue, d.RevenueShare, d.RegisteredCount, d.CPACount,
		d.FirstDepositCount, d.WageringCount, d.ClickCount, d.FxPartnerID,
	)
	if err != nil {
		return fmt.Errorf("upsert daily for link %s: %w", d.LinkID, err)
	}
	return nil
}

// ListDailyByLink returns a link's house daily rows within [from, to].
func (q *Queries) ListDailyByLink(ctx context.Context, linkID string, from, to time.Time) ([]domain.BetenlaceDailyReport, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+dailyColumns+` FROM betenlace_daily_reports
		 WHERE link_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at`,
		linkID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("query daily by link: %w", err)
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

// --- partner daily ---

const partnerDailyColumns = `id, partner_link_id, betenlace_daily_id, partner_id, created_at,
	currency_fixed_income, currency_local, percentage_cpa, fixed_income_unitary,
	fixed_income_unitary_local, fixed_income, fixed_income_local, fx_book_local,
	fx_book_net_revenue_local, fx_percentage, cpa_count, deposit, registered_count,
	first_deposit_count, wagering_count, tracker, tracker_deposit, tracker_registered_count,
	tracker_first_deposit_count, tracker_wagering_count, stake, net_revenue, revenue_share,
	adviser_id, fixed_income_adviser_percentage, net_revenue_adviser_percentage,
	fixed_income_adviser, fixed_income_adviser_local, net_revenue_adviser, net_revenue_adviser_local,
	referred_by_id, fixed_income_referred_percentage, net_revenue_referred_percentage,
	fixed_income_referred, fixed_income_referred_local, net_revenue_referred, net_revenue_referred_local`

type attributionScan struct {
	partnerID                              sql.NullString
	fiPct, nrPct, fi, fiLocal, nr, nrLocal sql.NullFloat64
}

func (s *attributionScan) dest() []any {
	return []any{&s.partnerID, &s.fiPct, &s.nrPct, &s.fi, &s.fiLocal, &s.nr, &s.nrLocal}
}

func (s *attributionScan) toDomain() domain.Attribution {
	return domain.Attribution{
		PartnerID:             nullString(s.partnerID),
		FixedIncomePercentage: nullFloat(s.fiPct),
		NetRevenuePercentage:  nullFloat(s.nrPct),
		FixedIncome:           nullFloat(s.fi),
		FixedIncomeLocal:      nullFloat(s.fiLocal),
		NetRevenue:            nullFloat(s.nr),
		NetRevenueLocal:       nullFloat(s.nrLocal),
	}
}

func attributionArgs(a domain.Attribution) []any {
	return []any{a.PartnerID, a.FixedIncomePercentage, a.NetRevenuePercentage,
		a.FixedIncome, a.FixedIncomeLocal, a.NetRevenue, a.NetRevenueLocal}
}

func (q *Queries) scanPartnerDaily(row scanner) (*domain.PartnerLinkDailyReport, error) {
	var r domain.PartnerLinkDailyReport
	var date, fixed, local string
	var adviser, referred attributionScan
	dest := []any{&r.ID, &r.PartnerLinkID, &r.BetenlaceDailyID, &r.PartnerID, &date,
		&fixed, &local, &r.PercentageCPA, &r.FixedIncomeUnitary, &r.FixedIncomeUnitaryLocal,
		&r.FixedIncome, &r.FixedIncomeLocal, &r.FxBookLocal, &r.FxBookNetRevenueLocal,
		&r.FxPercentage, &r.CPACount, &r.Deposit, &r.RegisteredCount, &r.FirstDepositCount,
		&r.WageringCount, &r.Trackers.Tracker, &r.Trackers.TrackerDeposit,
		&r.Trackers.TrackerRegisteredCount, &r.Trackers.TrackerFirstDepositCount,
		&r.Trackers.TrackerWageringCount, &r.Stake, &r.NetRevenue, &r.RevenueShare}
	dest = append(dest, adviser.dest()...)
	dest = append(dest, referred.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	r.Date = q.parseDate(date)
	r.CurrencyFixedIncome = codeOf(fixed)
	r.CurrencyLocal = codeOf(local)
	r.Adviser = adviser.toDomain()
	r.Referred = referred.toDomain()
	return &r, nil
}

// GetPartnerDailyReports returns the partner daily rows of the given
// accumulators on date, keyed by accumulator id.
func (q *Queries) GetPartnerDailyReports(ctx context.Context, accumulatorIDs []string, date time.Time) (map[string]*domain.PartnerLinkDailyReport, error) {
	out := make(map[string]*domain.PartnerLinkDailyReport, len(accumulatorIDs))
	if len(accumulatorIDs) == 0 {
		return out, nil
	}
	args := append(stringArgs(accumulatorIDs), formatDate(date))
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+partnerDailyColumns+" FROM partner_link_daily_reports WHERE partner_link_id IN ("+
			placeholders(len(accumulatorIDs))+") AND created_at = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("query partner daily reports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := q.scanPartnerDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner daily report: %w", err)
		}
		out[r.PartnerLinkID] = r
	}
	return out, rows.Err()
}

func (q *Queries) UpsertPartnerDaily(ctx context.Context, r *domain.PartnerLinkDailyReport) error {
	r.ID = newID(r.ID)
	args := []any{r.ID, r.PartnerLinkID, r.BetenlaceDailyID, r.PartnerID, formatDate(r.Date),
		r.CurrencyFixedIncome.String(), r.CurrencyLocal.String(), r.PercentageCPA,
		r.FixedIncomeUnitary, r.FixedIncomeUnitaryLocal, r.FixedIncome, r.FixedIncomeLocal,
		r.FxBookLocal, r.FxBookNetRevenueLocal, r.FxPercentage, r.CPACount, r.Deposit,
		r.RegisteredCount, r.FirstDepositCount, r.WageringCount, r.Trackers.Tracker,
		r.Trackers.TrackerDeposit, r.Trackers.TrackerRegisteredCount,
		r.Trackers.TrackerFirstDepositCount, r.Trackers.TrackerWageringCount,
		r.Stake, r.NetRevenue, r.RevenueShare}
	args = append(args, attributionArgs(r.Adviser)...)
	args = append(args, attributionArgs(r.Referred)...)

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO partner_link_daily_reports (`+partnerDailyColumns+`)
		VALUES (`+placeholders(len(args))+`)
		ON CONFLICT(partner_link_id, created_at) DO UPDATE SET
			betenlace_daily_id = excluded.betenlace_daily_id,
			currency_fixed_income = excluded.currency_fixed_income,
			currency_local = excluded.currency_local,
			percentage_cpa = excluded.percentage_cpa,
			fixed_income_unitary = excluded.fixed_income_unitary,
			fixed_income_unitary_local = excluded.fixed_income_unitary_local,
			fixed_income = excluded.fixed_income,
			fixed_income_local = excluded.fixed_income_local,
			fx_book_local = excluded.fx_book_local,
			fx_book_net_revenue_local = excluded.fx_book_net_revenue_local,
			fx_percentage = excluded.fx_percentage,
			cpa_count = excluded.cpa_count,
			deposit = excluded.deposit,
			registered_count = excluded.registered_count,
			first_deposit_count = excluded.first_deposit_count,
			wagering_count = excluded.wagering_count,
			tracker = excluded.tracker,
			tracker_deposit = excluded.tracker_deposit,
			tracker_registered_count = excluded.tracker_registered_count,
			tracker_first_deposit_count = excluded.tracker_first_deposit_count,
			tracker_wagering_count = excluded.tracker_wagering_count,
			stake = excluded.stake,
			net_revenue = excluded.net_revenue,
			revenue_share = excluded.revenue_share,
			adviser_id = excluded.adviser_id,
			fixed_income_adviser_percentage = excluded.fixed_income_adviser_percentage,
			net_revenue_adviser_percentage = excluded.net_revenue_adviser_percentage,
			fixed_income_adviser = excluded.fixed_income_adviser,
			fixed_income_adviser_local = excluded.fixed_income_adviser_local,
			net_revenue_adviser = excluded.net_revenue_adviser,
			net_revenue_adviser_local = excluded.net_revenue_adviser_local,
			referred_by_id = excluded.referred_by_id,
			fixed_income_referred_percentage = excluded.fixed_income_referred_percentage,
			net_revenue_referred_percentage = excluded.net_revenue_referred_percentage,
			fixed_income_referred = excluded.fixed_income_referred,
			fixed_income_referred_local = excluded.fixed_income_referred_local,
			net_revenue_referred = excluded.net_revenue_referred,
			net_revenue_referred_local = excluded.net_revenue_referred_local`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("upsert partner daily for %s: %w", r.PartnerLinkID, err)
	}
	return nil
}

// PartnerDailyWithContext is a partner daily row joined with what the month
// close needs to recompute it.
type PartnerDailyWithContext struct {
	Report      domain.PartnerLinkDailyReport
	CampaignID  string
	Accumulator domain.PartnerLinkAccumulated
}

// ListPartnerDailiesInRange returns a partner's daily rows within [from, to]
// together with their accumulator.
func (q *Queries) ListPartnerDailiesInRange(ctx context.Context, partnerID string, from, to time.Time) ([]PartnerDailyWithContext, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+prefixColumns("r", partnerDailyColumns)+`, `+accumulatorColumns+`
		 FROM partner_link_daily_reports r
		 JOIN partner_link_accumulated a ON a.id = r.partner_link_id
		 WHERE r.partner_id = ? AND r.created_at >= ? AND r.created_at <= ?
		 ORDER BY r.created_at, r.partner_link_id`,
		partnerID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("query partner dailies: %w", err)
	}
	defer rows.Close()

	var out []PartnerDailyWithContext
	for rows.Next() {
		var item PartnerDailyWithContext
		var a accumulatorScan
		r, err := q.scanPartnerDaily(&suffixScanner{rows: rows, extra: a.dest()})
		if err != nil {
			return nil, fmt.Errorf("scan partner daily: %w", err)
		}
		item.Report = *r
		item.Accumulator = *a.toDomain(q)
		item.CampaignID = item.Accumulator.CampaignID
		out = append(out, item)
	}
	return out, rows.Err()
}

// PartnersWithDailies returns the ids of partners having any daily row in
// [from, to].
func (q *Queries) PartnersWithDailies(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT partner_id FROM partner_link_daily_reports
		 WHERE created_at >= ? AND created_at <= ? ORDER BY partner_id`,
		formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("query partners with dailies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
