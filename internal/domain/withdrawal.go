package domain

import (
	"time"

	"github.com/betenlace/affiliates/internal/currency"
)

type BillStatus string

const (
	BillNoInfo   BillStatus = "NO_INFO"
	BillNotReady BillStatus = "NOT_READY"
	BillToPay    BillStatus = "TO_PAY"
	BillPayed    BillStatus = "PAYED"
)

// CurrencyTotals keeps fixed income per campaign currency plus the USD
// transitional equivalent of every non-USD bucket.
type CurrencyTotals struct {
	FixedIncome    [currency.Count]float64 `json:"fixed_income"`
	FixedIncomeUSD [currency.Count]float64 `json:"fixed_income_usd"`
}

func (t CurrencyTotals) Add(o CurrencyTotals) CurrencyTotals {
	for i := range t.FixedIncome {
		t.FixedIncome[i] += o.FixedIncome[i]
		t.FixedIncomeUSD[i] += o.FixedIncomeUSD[i]
	}
	return t
}

type WithdrawalBill struct {
	ID               string         `json:"id"`
	PartnerID        string         `json:"partner_id"`
	BilledFromAt     time.Time      `json:"billed_from_at"`
	BilledToAt       time.Time      `json:"billed_to_at"`
	CurrencyLocal    currency.Code  `json:"currency_local"`
	Totals           CurrencyTotals `json:"totals"`
	FixedIncomeLocal float64        `json:"fixed_income_local"`
	CPACount         int            `json:"cpa_count"`
	Status           BillStatus     `json:"status"`

	FullName           string `json:"full_name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	IdentificationType string `json:"identification_type"`
	Identification     string `json:"identification"`
	PartnerLevel       int    `json:"partner_level"`

	BankAccountID *string `json:"bank_account_id,omitempty"`
	BankName      string  `json:"bank_name"`
	AccountNumber string  `json:"account_number"`
	OwnCompanyID  *string `json:"own_company_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PayedAt   *time.Time `json:"payed_at,omitempty"`
}

// WithdrawalAccumulation is one month's contribution to a bill.
type WithdrawalAccumulation struct {
	ID               string         `json:"id"`
	BillID           string         `json:"bill_id"`
	AccumAt          time.Time      `json:"accum_at"`
	Totals           CurrencyTotals `json:"totals"`
	FixedIncomeLocal float64        `json:"fixed_income_local"`
	CPACount         int            `json:"cpa_count"`
	CreatedAt        time.Time      `json:"created_at"`
}
