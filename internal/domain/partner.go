package domain

import "time"

type BankStatus string

const (
	BankStatusRequested BankStatus = "REQUESTED"
	BankStatusAccepted  BankStatus = "ACCEPTED"
	BankStatusRejected  BankStatus = "REJECTED"
)

type Partner struct {
	ID                 string     `json:"id"`
	FullName           string     `json:"full_name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	IdentificationType string     `json:"identification_type"`
	Identification     string     `json:"identification"`
	Level              int        `json:"level"`
	BankStatus         BankStatus `json:"bank_status"`

	AdviserID                    *string  `json:"adviser_id,omitempty"`
	FixedIncomeAdviserPercentage *float64 `json:"fixed_income_adviser_percentage,omitempty"`
	NetRevenueAdviserPercentage  *float64 `json:"net_revenue_adviser_percentage,omitempty"`

	ReferredByID                  *string  `json:"referred_by_id,omitempty"`
	FixedIncomeReferredPercentage *float64 `json:"fixed_income_referred_percentage,omitempty"`
	NetRevenueReferredPercentage  *float64 `json:"net_revenue_referred_percentage,omitempty"`
}

// AdviserSplit returns the live adviser percentages.
func (p *Partner) AdviserSplit() Attribution {
	return Attribution{
		PartnerID:             p.AdviserID,
		FixedIncomePercentage: p.FixedIncomeAdviserPercentage,
		NetRevenuePercentage:  p.NetRevenueAdviserPercentage,
	}
}

// ReferredSplit returns the live referrer percentages.
func (p *Partner) ReferredSplit() Attribution {
	return Attribution{
		PartnerID:             p.ReferredByID,
		FixedIncomePercentage: p.FixedIncomeReferredPercentage,
		NetRevenuePercentage:  p.NetRevenueReferredPercentage,
	}
}

type BankAccount struct {
	ID            string    `json:"id"`
	PartnerID     string    `json:"partner_id"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	IsPrimary     bool      `json:"is_primary"`
	CreatedAt     time.Time `json:"created_at"`
}

type OwnCompany struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TaxID    string `json:"tax_id"`
	IsActive bool   `json:"is_active"`
}

// LevelPercentage maps a partner level to the multiplier applied to a
// campaign's default percentage.
type LevelPercentage struct {
	Level  int     `json:"level"`
	Factor float64 `json:"factor"`
}
