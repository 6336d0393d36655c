package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
)

func codeOf(s string) currency.Code {
	c, _ := currency.Parse(s)
	return c
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// --- campaigns ---

const campaignColumns = `id, title, currency_condition, currency_fixed_income,
	fixed_income_unitary, default_percentage, status, last_inactive_at`

func (q *Queries) InsertCampaign(ctx context.Context, c *domain.Campaign) error {
	c.ID = newID(c.ID)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.Title, c.CurrencyCondition.String(), c.CurrencyFixedIncome.String(),
		c.FixedIncomeUnitary, c.DefaultPercentage, string(c.Status),
		formatNullableTime(c.LastInactiveAt),
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (q *Queries) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, lastInactiveAt *time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE campaigns SET status = ?, last_inactive_at = ? WHERE id = ?",
		string(status), formatNullableTime(lastInactiveAt), id,
	)
	return err
}

func (q *Queries) GetCampaignByTitle(ctx context.Context, title string) (*domain.Campaign, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE title = ?", title)
	c, err := q.scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, title)
	}
	return c, err
}

func (q *Queries) GetCampaignByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id)
	c, err := q.scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %s", domain.ErrCampaignNotFound, id)
	}
	return c, err
}

func (q *Queries) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+campaignColumns+" FROM campaigns ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := q.scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (q *Queries) CountCampaigns(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func (q *Queries) scanCampaign(row scanner) (*domain.Campaign, error) {
	var c domain.Campaign
	var condition, fixed, status string
	var lastInactive sql.NullString
	err := row.Scan(&c.ID, &c.Title, &condition, &fixed, &c.FixedIncomeUnitary,
		&c.DefaultPercentage, &status, &lastInactive)
	if err != nil {
		return nil, err
	}
	c.CurrencyCondition = codeOf(condition)
	c.CurrencyFixedIncome = codeOf(fixed)
	c.Status = domain.CampaignStatus(status)
	c.LastInactiveAt = q.nullTime(lastInactive)
	return &c, nil
}

// --- links ---

func (q *Queries) InsertLink(ctx context.Context, l *domain.Link) error {
	l.ID = newID(l.ID)
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO links (id, campaign_id, prom_code) VALUES (?,?,?)",
		l.ID, l.CampaignID, l.PromCode,
	)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// LoadLinkBundles resolves prom codes of a campaign to links, each loaded
// together with its house monthly row, partner accumulator and partner in a
// single query. The result is keyed by prom code; unknown codes are absent.
func (q *Queries) LoadLinkBundles(ctx context.Context, campaignID string, promCodes []string) (map[string]*domain.LinkBundle, error) {
	out := make(map[string]*domain.LinkBundle, len(promCodes))
	if len(promCodes) == 0 {
		return out, nil
	}

	query := `SELECT l.id, l.campaign_id, l.prom_code, ` + monthlyColumns + `, ` +
		accumulatorColumns + `, ` + partnerColumns + `
		FROM links l
		LEFT JOIN betenlace_cpa b ON b.link_id = l.id
		LEFT JOIN partner_link_accumulated a ON a.link_id = l.id
		LEFT JOIN partners p ON p.id = a.partner_id
		WHERE l.campaign_id = ? AND l.prom_code IN (` + placeholders(len(promCodes)) + `)`
	args := append([]any{campaignID}, stringArgs(promCodes)...)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query link bundles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b domain.LinkBundle
		var m monthlyScan
		var a accumulatorScan
		var p partnerScan
		dest := []any{&b.Link.ID, &b.Link.CampaignID, &b.Link.PromCode}
		dest = append(dest, m.dest()...)
		dest = append(dest, a.dest()...)
		dest = append(dest, p.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan link bundle: %w", err)
		}
		b.Monthly = m.toDomain(q)
		b.Accumulator = a.toDomain(q)
		b.Partner = p.toDomain()
		out[b.Link.PromCode] = &b
	}
	return out, rows.Err()
}

// --- partners ---

const partnerColumns = `p.id, p.full_name, p.email, p.phone, p.identification_type,
	p.identification, p.level, p.bank_status, p.adviser_id,
	p.fixed_income_adviser_percentage, p.net_revenue_adviser_percentage,
	p.referred_by_id, p.fixed_income_referred_percentage, p.net_revenue_referred_percentage`

type partnerScan struct {
	id, fullName, email, phone, idType, ident, bankStatus sql.NullString
	level                                                 sql.NullInt64
	adviserID, referredID                                 sql.NullString
	fiAdviser, nrAdviser, fiReferred, nrReferred          sql.NullFloat64
}

func (s *partnerScan) dest() []any {
	return []any{&s.id, &s.fullName, &s.email, &s.phone, &s.idType, &s.ident,
		&s.level, &s.bankStatus, &s.adviserID, &s.fiAdviser, &s.nrAdviser,
		&s.referredID, &s.fiReferred, &s.nrReferred}
}

func (s *partnerScan) toDomain() *domain.Partner {
	if !s.id.Valid {
		return nil
	}
	return &domain.Partner{
		ID:                            s.id.String,
		FullName:                      s.fullName.String,
		Email:                         s.email.String,
		Phone:                         s.phone.String,
		IdentificationType:            s.idType.String,
		Identification:                s.ident.String,
		Level:                         int(s.level.Int64),
		BankStatus:                    domain.BankStatus(s.bankStatus.String),
		AdviserID:                     nullString(s.adviserID),
		FixedIncomeAdviserPercentage:  nullFloat(s.fiAdviser),
		NetRevenueAdviserPercentage:   nullFloat(s.nrAdviser),
		ReferredByID:                  nullString(s.referredID),
		FixedIncomeReferredPercentage: nullFloat(s.fiReferred),
		NetRevenueReferredPercentage:  nullFloat(s.nrReferred),
	}
}

func (q *Queries) InsertPartner(ctx context.Context, p *domain.Partner) error {
	p.ID = newID(p.ID)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO partners (id, full_name, email, phone, identification_type,
		 identification, level, bank_status, adviser_id, fixed_income_adviser_percentage,
		 net_revenue_adviser_percentage, referred_by_id, fixed_income_referred_percentage,
		 net_revenue_referred_percentage)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.FullName, p.Email, p.Phone, p.IdentificationType, p.Identification,
		p.Level, string(p.BankStatus), p.AdviserID, p.FixedIncomeAdviserPercentage,
		p.NetRevenueAdviserPercentage, p.ReferredByID, p.FixedIncomeReferredPercentage,
		p.NetRevenueReferredPercentage,
	)
	if err != nil {
		return fmt.Errorf("insert partner: %w", err)
	}
	return nil
}

func (q *Queries) UpdatePartnerBankStatus(ctx context.Context, id string, status domain.BankStatus) error {
	_, err := q.db.ExecContext(ctx, "UPDATE partners SET bank_status = ? WHERE id = ?", string(status), id)
	return err
}

func (q *Queries) GetPartner(ctx context.Context, id string) (*domain.Partner, error) {
	var s partnerScan
	err := q.db.QueryRowContext(ctx, "SELECT "+partnerColumns+" FROM partners p WHERE p.id = ?", id).Scan(s.dest()...)
	if err != nil {
		return nil, fmt.Errorf("get partner %s: %w", id, err)
	}
	return s.toDomain(), nil
}

// --- partner link accumulators ---

const accumulatorColumns = `a.id, a.partner_id, a.link_id, a.campaign_id, a.percentage_cpa,
	a.is_percentage_custom, a.partner_level, a.currency_local, a.tracker, a.tracker_deposit,
	a.tracker_registered_count, a.tracker_first_deposit_count, a.tracker_wagering_count,
	a.status, a.cpa_count, a.fixed_income, a.fixed_income_local, a.period`

type accumulatorScan struct {
	id, partnerID, linkID, campaignID, currencyLocal, status, period sql.NullString
	percentage, fixedIncome, fixedIncomeLocal                        sql.NullFloat64
	tracker, trDeposit, trRegistered, trFirstDeposit, trWagering     sql.NullFloat64
	custom, level, cpaCount                                          sql.NullInt64
}

func (s *accumulatorScan) dest() []any {
	return []any{&s.id, &s.partnerID, &s.linkID, &s.campaignID, &s.percentage,
		&s.custom, &s.level, &s.currencyLocal, &s.tracker, &s.trDeposit,
		&s.trRegistered, &s.trFirstDeposit, &s.trWagering, &s.status, &s.cpaCount,
		&s.fixedIncome, &s.fixedIncomeLocal, &s.period}
}

func (s *accumulatorScan) toDomain(q *Queries) *domain.PartnerLinkAccumulated {
	if !s.id.Valid {
		return nil
	}
	return &domain.PartnerLinkAccumulated{
		ID:                 s.id.String,
		PartnerID:          s.partnerID.String,
		LinkID:             s.linkID.String,
		CampaignID:         s.campaignID.String,
		PercentageCPA:      s.percentage.Float64,
		IsPercentageCustom: s.custom.Int64 == 1,
		PartnerLevel:       int(s.level.Int64),
		CurrencyLocal:      codeOf(s.currencyLocal.String),
		Trackers: domain.Trackers{
			Tracker:                  s.tracker.Float64,
			TrackerDeposit:           s.trDeposit.Float64,
			TrackerRegisteredCount:   s.trRegistered.Float64,
			TrackerFirstDepositCount: s.trFirstDeposit.Float64,
			TrackerWageringCount:     s.trWagering.Float64,
		},
		Status:           domain.AccumulatorStatus(s.status.String),
		CPACount:         int(s.cpaCount.Int64),
		FixedIncome:      s.fixedIncome.Float64,
		FixedIncomeLocal: s.fixedIncomeLocal.Float64,
		Period:           q.nullDate(s.period),
	}
}

func (q *Queries) InsertAccumulator(ctx context.Context, a *domain.PartnerLinkAccumulated) error {
	a.ID = newID(a.ID)
	if a.Status == "" {
		a.Status = domain.AccumulatorByCampaign
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO partner_link_accumulated (id, partner_id, link_id, campaign_id,
		 percentage_cpa, is_percentage_custom, partner_level, currency_local, tracker,
		 tracker_deposit, tracker_registered_count, tracker_first_deposit_count,
		 tracker_wagering_count, status, cpa_count, fixed_income, fixed_income_local, period)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PartnerID, a.LinkID, a.CampaignID, a.PercentageCPA,
		boolInt(a.IsPercentageCustom), a.PartnerLevel, a.CurrencyLocal.String(),
		a.Trackers.Tracker, a.Trackers.TrackerDeposit, a.Trackers.TrackerRegisteredCount,
		a.Trackers.TrackerFirstDepositCount, a.Trackers.TrackerWageringCount,
		string(a.Status), a.CPACount, a.FixedIncome, a.FixedIncomeLocal,
		formatNullableDate(&a.Period),
	)
	if err != nil {
		return fmt.Errorf("insert accumulator: %w", err)
	}
	return nil
}

func (q *Queries) GetAccumulator(ctx context.Context, id string) (*domain.PartnerLinkAccumulated, error) {
	var s accumulatorScan
	err := q.db.QueryRowContext(ctx,
		"SELECT "+accumulatorColumns+" FROM partner_link_accumulated a WHERE a.id = ?", id,
	).Scan(s.dest()...)
	if err != nil {
		return nil, fmt.Errorf("get accumulator %s: %w", id, err)
	}
	return s.toDomain(q), nil
}

// UpdateAccumulatorCounters writes the month-to-date counters and period.
func (q *Queries) UpdateAccumulatorCounters(ctx context.Context, a *domain.PartnerLinkAccumulated) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE partner_link_accumulated
		 SET cpa_count = ?, fixed_income = ?, fixed_income_local = ?, period = ?
		 WHERE id = ?`,
		a.CPACount, a.FixedIncome, a.FixedIncomeLocal, formatNullableDate(&a.Period), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update accumulator %s: %w", a.ID, err)
	}
	return nil
}

func (q *Queries) UpdateAccumulatorPercentage(ctx context.Context, id string, percentage float64, level int) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE partner_link_accumulated SET percentage_cpa = ?, partner_level = ? WHERE id = ?",
		percentage, level, id,
	)
	return err
}

func (q *Queries) UpdateAccumulatorStatus(ctx context.Context, id string, status domain.AccumulatorStatus) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE partner_link_accumulated SET status = ? WHERE id = ?", string(status), id)
	return err
}

// --- level percentages ---

func (q *Queries) SetLevelPercentage(ctx context.Context, lp domain.LevelPercentage) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO level_percentages (level, factor) VALUES (?, ?)
		 ON CONFLICT(level) DO UPDATE SET factor = excluded.factor`,
		lp.Level, lp.Factor,
	)
	return err
}

// GetLevelPercentage returns the factor for level or ErrConfigMissing.
func (q *Queries) GetLevelPercentage(ctx context.Context, level int) (float64, error) {
	var factor float64
	err := q.db.QueryRowContext(ctx, "SELECT factor FROM level_percentages WHERE level = ?", level).Scan(&factor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: level percentage for level %d", domain.ErrConfigMissing, level)
	}
	return factor, err
}

// --- bank accounts and own companies ---

func (q *Queries) InsertBankAccount(ctx context.Context, b *domain.BankAccount) error {
	b.ID = newID(b.ID)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO bank_accounts (id, partner_id, bank_name, account_number, is_primary, created_at)
		 VALUES (?,?,?,?,?,?)`,
		b.ID, b.PartnerID, b.BankName, b.AccountNumber, boolInt(b.IsPrimary), formatTime(b.CreatedAt),
	)
	return err
}

// PrimaryBankAccount picks the primary account among the partner's first
// limit accounts, falling back to the oldest one.
func (q *Queries) PrimaryBankAccount(ctx context.Context, partnerID string, limit int) (*domain.BankAccount, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, partner_id, bank_name, account_number, is_primary, created_at
		 FROM bank_accounts WHERE partner_id = ? ORDER BY created_at LIMIT ?`,
		partnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query bank accounts: %w", err)
	}
	defer rows.Close()

	var chosen *domain.BankAccount
	for rows.Next() {
		var b domain.BankAccount
		var primary int
		var created string
		if err := rows.Scan(&b.ID, &b.PartnerID, &b.BankName, &b.AccountNumber, &primary, &created); err != nil {
			return nil, fmt.Errorf("scan bank account: %w", err)
		}
		b.IsPrimary = primary == 1
		b.CreatedAt = q.parseTime(created)
		if chosen == nil || (b.IsPrimary && !chosen.IsPrimary) {
			acc := b
			chosen = &acc
		}
	}
	return chosen, rows.Err()
}

func (q *Queries) InsertOwnCompany(ctx context.Context, c *domain.OwnCompany) error {
	c.ID = newID(c.ID)
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO own_companies (id, name, tax_id, is_active) VALUES (?,?,?,?)",
		c.ID, c.Name, c.TaxID, boolInt(c.IsActive),
	)
	return err
}

// ActiveOwnCompany returns the billing company currently in use, or nil.
func (q *Queries) ActiveOwnCompany(ctx context.Context) (*domain.OwnCompany, error) {
	var c domain.OwnCompany
	var active int
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name, tax_id, is_active FROM own_companies WHERE is_active = 1 ORDER BY name LIMIT 1",
	).Scan(&c.ID, &c.Name, &c.TaxID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.IsActive = active == 1
	return &c, nil
}
