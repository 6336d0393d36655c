package domain

import "time"

// Row is the canonical normalised record every bookmaker feed is reduced to.
// An empty PunterID marks a member-scope (per prom_code) aggregate. Nil
// pointers are explicit nulls.
type Row struct {
	Seq               int        `json:"seq"`
	PromCode          string     `json:"prom_code"`
	PunterID          string     `json:"punter_id,omitempty"`
	Date              time.Time  `json:"date"`
	Deposit           float64    `json:"deposit"`
	Stake             float64    `json:"stake"`
	RevenueShare      float64    `json:"revenue_share"`
	NetRevenue        float64    `json:"net_revenue"`
	RegisteredAt      *time.Time `json:"registered_at,omitempty"`
	FirstDepositAt    *time.Time `json:"first_deposit_at,omitempty"`
	CPACount          *int       `json:"cpa_count,omitempty"`
	CPAAt             *time.Time `json:"cpa_at,omitempty"`
	RegisteredCount   *int       `json:"registered_count,omitempty"`
	FirstDepositCount *int       `json:"first_deposit_count,omitempty"`
	WageringCount     *int       `json:"wagering_count,omitempty"`
}

// IsAccount reports whether the row is account-scope.
func (r *Row) IsAccount() bool { return r.PunterID != "" }

// IntOr dereferences p or returns def.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
