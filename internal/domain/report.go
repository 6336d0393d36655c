package domain

import (
	"time"

	"github.com/betenlace/affiliates/internal/currency"
)

// Totals are the house-side numeric fields shared by the monthly and daily
// rows.
type Totals struct {
	Deposit           float64 `json:"deposit"`
	Stake             float64 `json:"stake"`
	FixedIncome       float64 `json:"fixed_income"`
	NetRevenue        float64 `json:"net_revenue"`
	RevenueShare      float64 `json:"revenue_share"`
	RegisteredCount   int     `json:"registered_count"`
	CPACount          int     `json:"cpa_count"`
	FirstDepositCount int     `json:"first_deposit_count"`
	WageringCount     int     `json:"wagering_count"`
}

func (t Totals) Add(o Totals) Totals {
	return Totals{
		Deposit:           t.Deposit + o.Deposit,
		Stake:             t.Stake + o.Stake,
		FixedIncome:       t.FixedIncome + o.FixedIncome,
		NetRevenue:        t.NetRevenue + o.NetRevenue,
		RevenueShare:      t.RevenueShare + o.RevenueShare,
		RegisteredCount:   t.RegisteredCount + o.RegisteredCount,
		CPACount:          t.CPACount + o.CPACount,
		FirstDepositCount: t.FirstDepositCount + o.FirstDepositCount,
		WageringCount:     t.WageringCount + o.WageringCount,
	}
}

func (t Totals) Sub(o Totals) Totals {
	return Totals{
		Deposit:           t.Deposit - o.Deposit,
		Stake:             t.Stake - o.Stake,
		FixedIncome:       t.FixedIncome - o.FixedIncome,
		NetRevenue:        t.NetRevenue - o.NetRevenue,
		RevenueShare:      t.RevenueShare - o.RevenueShare,
		RegisteredCount:   t.RegisteredCount - o.RegisteredCount,
		CPACount:          t.CPACount - o.CPACount,
		FirstDepositCount: t.FirstDepositCount - o.FirstDepositCount,
		WageringCount:     t.WageringCount - o.WageringCount,
	}
}

// BetenlaceCPA is the house month-to-date row for one link.
type BetenlaceCPA struct {
	ID     string    `json:"id"`
	LinkID string    `json:"link_id"`
	Period time.Time `json:"period"`
	Totals
}

type BetenlaceDailyReport struct {
	ID                  string        `json:"id"`
	LinkID              string        `json:"link_id"`
	Date                time.Time     `json:"date"`
	CurrencyCondition   currency.Code `json:"currency_condition"`
	CurrencyFixedIncome currency.Code `json:"currency_fixed_income"`
	FixedIncomeUnitary  float64       `json:"fixed_income_unitary"`
	ClickCount          *int          `json:"click_count"`
	FxPartnerID         *string       `json:"fx_partner_id,omitempty"`
	Totals
}

// Attribution is the adviser or referrer share frozen on a partner daily row.
// A nil percentage yields nil amounts.
type Attribution struct {
	PartnerID             *string  `json:"partner_id,omitempty"`
	FixedIncomePercentage *float64 `json:"fixed_income_percentage,omitempty"`
	NetRevenuePercentage  *float64 `json:"net_revenue_percentage,omitempty"`
	FixedIncome           *float64 `json:"fixed_income,omitempty"`
	FixedIncomeLocal      *float64 `json:"fixed_income_local,omitempty"`
	NetRevenue            *float64 `json:"net_revenue,omitempty"`
	NetRevenueLocal       *float64 `json:"net_revenue_local,omitempty"`
}

// Apply computes the amounts from the stored percentages.
func (a Attribution) Apply(fixedIncome, netRevenue, fxFixedIncome, fxCondition float64) Attribution {
	out := Attribution{
		PartnerID:             a.PartnerID,
		FixedIncomePercentage: a.FixedIncomePercentage,
		NetRevenuePercentage:  a.NetRevenuePercentage,
	}
	if a.FixedIncomePercentage != nil {
		v := fixedIncome * *a.FixedIncomePercentage
		local := v * fxFixedIncome
		out.FixedIncome, out.FixedIncomeLocal = &v, &local
	}
	if a.NetRevenuePercentage != nil {
		v := netRevenue * *a.NetRevenuePercentage
		local := v * fxCondition
		out.NetRevenue, out.NetRevenueLocal = &v, &local
	}
	return out
}

type PartnerLinkDailyReport struct {
	ID                  string        `json:"id"`
	PartnerLinkID       string        `json:"partner_link_id"`
	BetenlaceDailyID    string        `json:"betenlace_daily_id"`
	PartnerID           string        `json:"partner_id"`
	Date                time.Time     `json:"date"`
	CurrencyFixedIncome currency.Code `json:"currency_fixed_income"`
	CurrencyLocal       currency.Code `json:"currency_local"`

	PercentageCPA           float64 `json:"percentage_cpa"`
	FixedIncomeUnitary      float64 `json:"fixed_income_unitary"`
	FixedIncomeUnitaryLocal float64 `json:"fixed_income_unitary_local"`
	FixedIncome             float64 `json:"fixed_income"`
	FixedIncomeLocal        float64 `json:"fixed_income_local"`
	FxBookLocal             float64 `json:"fx_book_local"`
	FxBookNetRevenueLocal   float64 `json:"fx_book_net_revenue_local"`
	FxPercentage            float64 `json:"fx_percentage"`

	CPACount          int      `json:"cpa_count"`
	Deposit           float64  `json:"deposit"`
	RegisteredCount   int      `json:"registered_count"`
	FirstDepositCount int      `json:"first_deposit_count"`
	WageringCount     int      `json:"wagering_count"`
	Trackers          Trackers `json:"trackers"`

	// Copied from the house day untracked.
	Stake        float64 `json:"stake"`
	NetRevenue   float64 `json:"net_revenue"`
	RevenueShare float64 `json:"revenue_share"`

	Adviser  Attribution `json:"adviser"`
	Referred Attribution `json:"referred"`
}

// AccountReport is the cumulative record of one punter on one link.
type AccountReport struct {
	ID                  string        `json:"id"`
	LinkID              string        `json:"link_id"`
	PunterID            string        `json:"punter_id"`
	PartnerLinkID       *string       `json:"partner_link_id,omitempty"`
	CurrencyCondition   currency.Code `json:"currency_condition"`
	CurrencyFixedIncome currency.Code `json:"currency_fixed_income"`
	Deposit             float64       `json:"deposit"`
	Stake               float64       `json:"stake"`
	FixedIncome         float64       `json:"fixed_income"`
	NetRevenue          float64       `json:"net_revenue"`
	RevenueShare        float64       `json:"revenue_share"`
	CPABetenlace        int           `json:"cpa_betenlace"`
	CPAPartner          int           `json:"cpa_partner"`
	RegisteredAt        *time.Time    `json:"registered_at,omitempty"`
	FirstDepositAt      *time.Time    `json:"first_deposit_at,omitempty"`
	CPAAt               *time.Time    `json:"cpa_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// AccountContribution is one day's share of an AccountReport's running sums.
type AccountContribution struct {
	AccountReportID string    `json:"account_report_id"`
	Date            time.Time `json:"date"`
	Deposit         float64   `json:"deposit"`
	Stake           float64   `json:"stake"`
	NetRevenue      float64   `json:"net_revenue"`
	RevenueShare    float64   `json:"revenue_share"`
	// Credited is set when this day made the account a CPA.
	Credited bool `json:"credited"`
}

// ClickEvent is a raw click-tracking record.
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"count"`
}
