package domain

import (
	"time"

	"github.com/betenlace/affiliates/internal/currency"
)

// RateMatrix holds cross rates indexed by (from, to). A zero cell is unknown.
type RateMatrix [currency.Count][currency.Count]float64

// FxSnapshot is one day's immutable set of cross rates plus the partner
// haircut.
type FxSnapshot struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	FxPercentage float64    `json:"fx_percentage"`
	Rates        RateMatrix `json:"-"`
}

// Rate returns the cross rate from -> to. Identity is always 1.
func (s *FxSnapshot) Rate(from, to currency.Code) (float64, error) {
	if from == to {
		return 1, nil
	}
	if !from.Valid() || !to.Valid() {
		return 0, &UnknownPairError{From: from, To: to}
	}
	r := s.Rates[from][to]
	if r == 0 {
		return 0, &UnknownPairError{From: from, To: to}
	}
	return r, nil
}

// PartnerRate is Rate with the haircut applied. The haircut is not applied
// on identity.
func (s *FxSnapshot) PartnerRate(from, to currency.Code) (float64, error) {
	if from == to {
		return 1, nil
	}
	r, err := s.Rate(from, to)
	if err != nil {
		return 0, err
	}
	return r * s.FxPercentage, nil
}
