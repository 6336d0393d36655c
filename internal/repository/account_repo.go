package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
)

// SQLite caps bound parameters per statement; large punter sets are queried
// in chunks of this size.
const inChunk = 500

const accountColumns = `id, link_id, punter_id, partner_link_id, currency_condition,
	currency_fixed_income, deposit, stake, fixed_income, net_revenue, revenue_share,
	cpa_betenlace, cpa_partner, registered_at, first_deposit_at, cpa_at, created_at`

// AccountKey identifies an AccountReport.
func AccountKey(linkID, punterID string) string {
	return linkID + "|" + punterID
}

func (q *Queries) scanAccount(row scanner) (*domain.AccountReport, error) {
	var a domain.AccountReport
	var pla, registered, firstDeposit, cpaAt sql.NullString
	var condition, fixed, created string
	err := row.Scan(&a.ID, &a.LinkID, &a.PunterID, &pla, &condition, &fixed,
		&a.Deposit, &a.Stake, &a.FixedIncome, &a.NetRevenue, &a.RevenueShare,
		&a.CPABetenlace, &a.CPAPartner, &registered, &firstDeposit, &cpaAt, &created)
	if err != nil {
		return nil, err
	}
	a.PartnerLinkID = nullString(pla)
	a.CurrencyCondition = codeOf(condition)
	a.CurrencyFixedIncome = codeOf(fixed)
	a.RegisteredAt = q.nullTime(registered)
	a.FirstDepositAt = q.nullTime(firstDeposit)
	a.CPAAt = q.nullTime(cpaAt)
	a.CreatedAt = q.parseTime(created)
	return &a, nil
}

// GetAccountReports loads the account rows of the given punters under the
// given links, keyed by AccountKey.
func (q *Queries) GetAccountReports(ctx context.Context, linkIDs, punterIDs []string) (map[string]*domain.AccountReport, error) {
	out := make(map[string]*domain.AccountReport, len(punterIDs))
	if len(linkIDs) == 0 || len(punterIDs) == 0 {
		return out, nil
	}
	for start := 0; start < len(punterIDs); start += inChunk {
		end := min(start+inChunk, len(punterIDs))
		chunk := punterIDs[start:end]

		args := append(stringArgs(linkIDs), stringArgs(chunk)...)
		rows, err := q.db.QueryContext(ctx,
			"SELECT "+accountColumns+" FROM account_reports WHERE link_id IN ("+
				placeholders(len(linkIDs))+") AND punter_id IN ("+placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return nil, fmt.Errorf("query account reports: %w", err)
		}
		for rows.Next() {
			a, err := q.scanAccount(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan account report: %w", err)
			}
			out[AccountKey(a.LinkID, a.PunterID)] = a
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpsertAccountReport creates or overwrites an account row.
func (q *Queries) UpsertAccountReport(ctx context.Context, a *domain.AccountReport) error {
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO account_reports (`+accountColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(link_id, punter_id) DO UPDATE SET
			partner_link_id = excluded.partner_link_id,
			deposit = excluded.deposit,
			stake = excluded.stake,
			fixed_income = excluded.fixed_income,
			net_revenue = excluded.net_revenue,
			revenue_share = excluded.revenue_share,
			cpa_betenlace = excluded.cpa_betenlace,
			cpa_partner = excluded.cpa_partner,
			registered_at = excluded.registered_at,
			first_deposit_at = excluded.first_deposit_at,
			cpa_at = excluded.cpa_at`,
		a.ID, a.LinkID, a.PunterID, a.PartnerLinkID, a.CurrencyCondition.String(),
		a.CurrencyFixedIncome.String(), a.Deposit, a.Stake, a.FixedIncome, a.NetRevenue,
		a.RevenueShare, a.CPABetenlace, a.CPAPartner, formatNullableTime(a.RegisteredAt),
		formatNullableTime(a.FirstDepositAt), formatNullableTime(a.CPAAt), formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert account report %s/%s: %w", a.LinkID, a.PunterID, err)
	}
	return nil
}

// ListAccountReports returns every account row of a link ordered by punter.
func (q *Queries) ListAccountReports(ctx context.Context, linkID string) ([]domain.AccountReport, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM account_reports WHERE link_id = ? ORDER BY punter_id", linkID)
	if err != nil {
		return nil, fmt.Errorf("query account reports: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountReport
	for rows.Next() {
		a, err := q.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account report: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetContributions returns what each account contributed on date, keyed by
// account id.
func (q *Queries) GetContributions(ctx context.Context, accountIDs []string, date time.Time) (map[string]*domain.AccountContribution, error) {
	out := make(map[string]*domain.AccountContribution, len(accountIDs))
	for start := 0; start < len(accountIDs); start += inChunk {
		end := min(start+inChunk, len(accountIDs))
		chunk := accountIDs[start:end]

		args := append(stringArgs(chunk), formatDate(date))
		rows, err := q.db.QueryContext(ctx,
			`SELECT account_report_id, created_at, deposit, stake, net_revenue, revenue_share, credited
			 FROM account_daily_contributions
			 WHERE account_report_id IN (`+placeholders(len(chunk))+`) AND created_at = ?`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("query contributions: %w", err)
		}
		for rows.Next() {
			var c domain.AccountContribution
			var d string
			if err := rows.Scan(&c.AccountReportID, &d, &c.Deposit, &c.Stake, &c.NetRevenue, &c.RevenueShare, &c.Credited); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan contribution: %w", err)
			}
			c.Date = q.parseDate(d)
			out[c.AccountReportID] = &c
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *Queries) UpsertContribution(ctx context.Context, c *domain.AccountContribution) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO account_daily_contributions
			(account_report_id, created_at, deposit, stake, net_revenue, revenue_share, credited)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(account_report_id, created_at) DO UPDATE SET
			deposit = excluded.deposit,
			stake = excluded.stake,
			net_revenue = excluded.net_revenue,
			revenue_share = excluded.revenue_share,
			credited = excluded.credited`,
		c.AccountReportID, formatDate(c.Date), c.Deposit, c.Stake, c.NetRevenue, c.RevenueShare, c.Credited,
	)
	if err != nil {
		return fmt.Errorf("upsert contribution for %s: %w", c.AccountReportID, err)
	}
	return nil
}
