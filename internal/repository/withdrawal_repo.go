package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
)

func totalsArgs(t domain.CurrencyTotals) []any {
	var out []any
	for _, c := range currency.All() {
		out = append(out, t.FixedIncome[c])
		if c != currency.USD {
			out = append(out, t.FixedIncomeUSD[c])
		}
	}
	return out
}

func totalsDest(t *domain.CurrencyTotals) []any {
	var out []any
	for _, c := range currency.All() {
		out = append(out, &t.FixedIncome[c])
		if c != currency.USD {
			out = append(out, &t.FixedIncomeUSD[c])
		}
	}
	return out
}

var (
	billColumns = `id, partner_id, billed_from_at, billed_to_at, currency_local, ` +
		strings.Join(currencyColumns(), ", ") + `, fixed_income_local, cpa_count, status,
	full_name, email, phone, identification_type, identification, partner_level,
	bank_account_id, bank_name, account_number, own_company_id, created_at, updated_at, payed_at`

	accumulationColumns = `id, bill_id, accum_at, ` + strings.Join(currencyColumns(), ", ") +
		`, fixed_income_local, cpa_count, created_at`
)

func (q *Queries) scanBill(row scanner) (*domain.WithdrawalBill, error) {
	var b domain.WithdrawalBill
	var from, to, local, status, created, updated string
	var bankAccount, company, payed sql.NullString
	dest := []any{&b.ID, &b.PartnerID, &from, &to, &local}
	dest = append(dest, totalsDest(&b.Totals)...)
	dest = append(dest, &b.FixedIncomeLocal, &b.CPACount, &status,
		&b.FullName, &b.Email, &b.Phone, &b.IdentificationType, &b.Identification, &b.PartnerLevel,
		&bankAccount, &b.BankName, &b.AccountNumber, &company, &created, &updated, &payed)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	b.BilledFromAt = q.parseDate(from)
	b.BilledToAt = q.parseDate(to)
	b.CurrencyLocal = codeOf(local)
	b.Status = domain.BillStatus(status)
	b.BankAccountID = nullString(bankAccount)
	b.OwnCompanyID = nullString(company)
	b.CreatedAt = q.parseTime(created)
	b.UpdatedAt = q.parseTime(updated)
	b.PayedAt = q.nullTime(payed)
	return &b, nil
}

func billArgs(b *domain.WithdrawalBill) []any {
	args := []any{b.ID, b.PartnerID, formatDate(b.BilledFromAt), formatDate(b.BilledToAt), b.CurrencyLocal.String()}
	args = append(args, totalsArgs(b.Totals)...)
	args = append(args, b.FixedIncomeLocal, b.CPACount, string(b.Status),
		b.FullName, b.Email, b.Phone, b.IdentificationType, b.Identification, b.PartnerLevel,
		b.BankAccountID, b.BankName, b.AccountNumber, b.OwnCompanyID,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt), formatNullableTime(b.PayedAt))
	return args
}

// GetOpenBill returns the partner's most recent bill that is not PAYED, or nil.
func (q *Queries) GetOpenBill(ctx context.Context, partnerID string) (*domain.WithdrawalBill, error) {
	b, err := q.scanBill(q.db.QueryRowContext(ctx,
		"SELECT "+billColumns+` FROM withdrawal_bills
		 WHERE partner_id = ? AND status != ? ORDER BY created_at DESC LIMIT 1`,
		partnerID, string(domain.BillPayed)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open bill for %s: %w", partnerID, err)
	}
	return b, nil
}

func (q *Queries) GetBill(ctx context.Context, id string) (*domain.WithdrawalBill, error) {
	b, err := q.scanBill(q.db.QueryRowContext(ctx, "SELECT "+billColumns+" FROM withdrawal_bills WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", id, err)
	}
	return b, nil
}

// ListBills returns a partner's bills, newest first.
func (q *Queries) ListBills(ctx context.Context, partnerID string) ([]domain.WithdrawalBill, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+billColumns+" FROM withdrawal_bills WHERE partner_id = ? ORDER BY created_at DESC, billed_from_at DESC",
		partnerID)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalBill
	for rows.Next() {
		b, err := q.scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (q *Queries) InsertBill(ctx context.Context, b *domain.WithdrawalBill) error {
	b.ID = newID(b.ID)
	args := billArgs(b)
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO withdrawal_bills ("+billColumns+") VALUES ("+placeholders(len(args))+")", args...)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

// UpdateBill rewrites every mutable column of an open bill. PAYED bills are
// never touched and yield ErrBillPayed.
func (q *Queries) UpdateBill(ctx context.Context, b *domain.WithdrawalBill) error {
	cols := append([]string{"billed_from_at", "billed_to_at", "currency_local"}, currencyColumns()...)
	cols = append(cols, "fixed_income_local", "cpa_count", "status", "full_name", "email",
		"phone", "identification_type", "identification", "partner_level", "bank_account_id",
		"bank_name", "account_number", "own_company_id", "updated_at")
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}

	all := billArgs(b)
	// Drop id and partner_id at the front, created_at and payed_at at the back.
	args := append([]any{}, all[2:len(all)-3]...)
	args = append(args, all[len(all)-2], b.ID, string(domain.BillPayed))

	res, err := q.db.ExecContext(ctx,
		"UPDATE withdrawal_bills SET "+strings.Join(sets, ", ")+" WHERE id = ? AND status != ?", args...)
	if err != nil {
		return fmt.Errorf("update bill %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update bill %s: %w", b.ID, domain.ErrBillPayed)
	}
	return nil
}

// MarkBillPayed freezes a bill.
func (q *Queries) MarkBillPayed(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE withdrawal_bills SET status = ?, payed_at = ?, updated_at = ? WHERE id = ?",
		string(domain.BillPayed), formatTime(at), formatTime(at), id)
	return err
}

func (q *Queries) scanAccumulation(row scanner) (*domain.WithdrawalAccumulation, error) {
	var a domain.WithdrawalAccumulation
	var accumAt, created string
	dest := []any{&a.ID, &a.BillID, &accumAt}
	dest = append(dest, totalsDest(&a.Totals)...)
	dest = append(dest, &a.FixedIncomeLocal, &a.CPACount, &created)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.AccumAt = q.parseDate(accumAt)
	a.CreatedAt = q.parseTime(created)
	return &a, nil
}

// ListAccumulations returns a bill's monthly rows ordered by month.
func (q *Queries) ListAccumulations(ctx context.Context, billID string) ([]domain.WithdrawalAccumulation, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+accumulationColumns+" FROM withdrawal_accumulations WHERE bill_id = ? ORDER BY accum_at",
		billID)
	if err != nil {
		return nil, fmt.Errorf("query accumulations: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalAccumulation
	for rows.Next() {
		a, err := q.scanAccumulation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan accumulation: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpsertAccumulation creates or replaces the bill's row for a.AccumAt.
func (q *Queries) UpsertAccumulation(ctx context.Context, a *domain.WithdrawalAccumulation) error {
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	args := []any{a.ID, a.BillID, formatDate(a.AccumAt)}
	args = append(args, totalsArgs(a.Totals)...)
	args = append(args, a.FixedIncomeLocal, a.CPACount, formatTime(a.CreatedAt))

	sets := []string{"fixed_income_local = excluded.fixed_income_local", "cpa_count = excluded.cpa_count"}
	for _, c := range currencyColumns() {
		sets = append(sets, c+" = excluded."+c)
	}
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO withdrawal_accumulations ("+accumulationColumns+") VALUES ("+placeholders(len(args))+
			") ON CONFLICT(bill_id, accum_at) DO UPDATE SET "+strings.Join(sets, ", "),
		args...)
	if err != nil {
		return fmt.Errorf("upsert accumulation %s: %w", formatDate(a.AccumAt), err)
	}
	return nil
}

// MonthInPayedBill reports whether month already contributed to one of the
// partner's PAYED bills.
func (q *Queries) MonthInPayedBill(ctx context.Context, partnerID string, month time.Time) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_accumulations a
		 JOIN withdrawal_bills b ON b.id = a.bill_id
		 WHERE b.partner_id = ? AND b.status = ? AND a.accum_at = ?`,
		partnerID, string(domain.BillPayed), formatDate(month)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check payed month: %w", err)
	}
	return n > 0, nil
}
