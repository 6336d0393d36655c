// Package bookmaker fetches daily activity reports from bookmaker affiliate
// endpoints. Each adapter hides one feed's auth scheme, request shape and
// payload format behind Adapter and emits rows keyed by canonical column
// names.
package bookmaker

import (
	"context"
	"time"
)

// Canonical column names.
const (
	ColPromCode          = "prom_code"
	ColPunterID          = "punter_id"
	ColDate              = "date"
	ColDeposit           = "deposit"
	ColStake             = "stake"
	ColRevenueShare      = "revenue_share"
	ColNetRevenue        = "net_revenue"
	ColRegisteredAt      = "registered_at"
	ColFirstDepositAt    = "first_deposit_at"
	ColCPACount          = "cpa_count"
	ColCPAAt             = "cpa_at"
	ColRegisteredCount   = "registered_count"
	ColFirstDepositCount = "first_deposit_count"
	ColWageringCount     = "wagering_count"
	ColCurrency          = "currency"
)

// NotRegistered is the punter id feeds use for activity that is not tied to
// a registered account.
const NotRegistered = "Not Registered"

// RawRow is one decoded feed record. Values are strings (CSV) or JSON
// scalars; the normaliser coerces them.
type RawRow map[string]any

// Adapter is one bookmaker feed bound to one campaign.
type Adapter interface {
	Name() string
	// Fetch returns the feed rows for the platform calendar day starting at
	// date. A recognised "no data" answer yields nil rows and a warning.
	Fetch(ctx context.Context, date time.Time) ([]RawRow, []string, error)
	// RevenueThreshold is the per-punter revenue share a punter must reach to
	// count as a CPA. Zero means the feed supplies cpa_count itself.
	RevenueThreshold() float64
	ExposesPunters() bool
	ExposesMembers() bool
	IntraDay() bool
	DropZeroRows() bool
	// RevenueShareOnly campaigns pay no fixed income on the house rows.
	RevenueShareOnly() bool
}
