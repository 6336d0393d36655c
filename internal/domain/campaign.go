package domain

import (
	"time"

	"github.com/betenlace/affiliates/internal/currency"
)

type CampaignStatus string

const (
	CampaignActive       CampaignStatus = "ACTIVE"
	CampaignInactive     CampaignStatus = "INACTIVE"
	CampaignNotAvailable CampaignStatus = "NOT_AVAILABLE"
)

// Campaign is one bookmaker product feed.
type Campaign struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	CurrencyCondition   currency.Code  `json:"currency_condition"`
	CurrencyFixedIncome currency.Code  `json:"currency_fixed_income"`
	FixedIncomeUnitary  float64        `json:"fixed_income_unitary"`
	DefaultPercentage   float64        `json:"default_percentage"`
	Status              CampaignStatus `json:"status"`
	LastInactiveAt      *time.Time     `json:"last_inactive_at,omitempty"`
}

// Link is a promotional code under a campaign.
type Link struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	PromCode   string `json:"prom_code"`
}

type AccumulatorStatus string

const (
	AccumulatorActive     AccumulatorStatus = "ACTIVE"
	AccumulatorInactive   AccumulatorStatus = "INACTIVE"
	AccumulatorByCampaign AccumulatorStatus = "BY_CAMPAIGN"
)

// Trackers are multiplicative down-count factors in [0,1].
type Trackers struct {
	Tracker                  float64 `json:"tracker"`
	TrackerDeposit           float64 `json:"tracker_deposit"`
	TrackerRegisteredCount   float64 `json:"tracker_registered_count"`
	TrackerFirstDepositCount float64 `json:"tracker_first_deposit_count"`
	TrackerWageringCount     float64 `json:"tracker_wagering_count"`
}

// FullTrackers passes every value through unchanged.
func FullTrackers() Trackers {
	return Trackers{1, 1, 1, 1, 1}
}

// PartnerLinkAccumulated is a partner's assignment to a link and its
// month-to-date counters for Period.
type PartnerLinkAccumulated struct {
	ID                 string            `json:"id"`
	PartnerID          string            `json:"partner_id"`
	LinkID             string            `json:"link_id"`
	CampaignID         string            `json:"campaign_id"`
	PercentageCPA      float64           `json:"percentage_cpa"`
	IsPercentageCustom bool              `json:"is_percentage_custom"`
	PartnerLevel       int               `json:"partner_level"`
	CurrencyLocal      currency.Code     `json:"currency_local"`
	Trackers           Trackers          `json:"trackers"`
	Status             AccumulatorStatus `json:"status"`
	CPACount           int               `json:"cpa_count"`
	FixedIncome        float64           `json:"fixed_income"`
	FixedIncomeLocal   float64           `json:"fixed_income_local"`
	Period             time.Time         `json:"period"`
}

// PartnerGated reports whether partner-side effects are suppressed on day for
// this accumulator under campaign c.
func (p *PartnerLinkAccumulated) PartnerGated(c *Campaign, day time.Time) bool {
	switch p.Status {
	case AccumulatorInactive:
		return true
	case AccumulatorByCampaign:
		if c.Status != CampaignInactive || c.LastInactiveAt == nil {
			return false
		}
		inactive := c.LastInactiveAt.In(day.Location())
		inactiveDay := time.Date(inactive.Year(), inactive.Month(), inactive.Day(), 0, 0, 0, 0, day.Location())
		return !day.Before(inactiveDay)
	}
	return false
}

// LinkBundle is a link loaded together with its house monthly row and the
// partner accumulator, if any.
type LinkBundle struct {
	Link        Link
	Monthly     *BetenlaceCPA
	Accumulator *PartnerLinkAccumulated
	Partner     *Partner
}
