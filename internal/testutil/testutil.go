// Package testutil seeds an in-memory database with the reference rows the
// ingestion and settlement tests build on.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/repository"
)

// USDPrices is the price of one USD in each currency, used to build a
// consistent cross-rate matrix.
var USDPrices = map[currency.Code]float64{
	currency.USD: 1,
	currency.EUR: 0.9,
	currency.COP: 4000,
	currency.MXN: 17,
	currency.GBP: 0.8,
	currency.PEN: 3.7,
	currency.BRL: 5,
	currency.CLP: 900,
}

// NewStore opens a fresh in-memory database.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewStore(db, time.UTC)
}

func Campaign(t testing.TB, s *repository.Store, title string, mods ...func(*domain.Campaign)) *domain.Campaign {
	t.Helper()
	c := &domain.Campaign{
		Title:               title,
		CurrencyCondition:   currency.USD,
		CurrencyFixedIncome: currency.USD,
		FixedIncomeUnitary:  100,
		DefaultPercentage:   0.5,
		Status:              domain.CampaignActive,
	}
	for _, m := range mods {
		m(c)
	}
	if err := s.InsertCampaign(context.Background(), c); err != nil {
		t.Fatalf("insert campaign: %v", err)
	}
	return c
}

func Link(t testing.TB, s *repository.Store, campaignID, promCode string) *domain.Link {
	t.Helper()
	l := &domain.Link{CampaignID: campaignID, PromCode: promCode}
	if err := s.InsertLink(context.Background(), l); err != nil {
		t.Fatalf("insert link: %v", err)
	}
	return l
}

func Partner(t testing.TB, s *repository.Store, mods ...func(*domain.Partner)) *domain.Partner {
	t.Helper()
	p := &domain.Partner{
		FullName:   "Ana Gomez",
		Email:      "ana@example.com",
		Level:      1,
		BankStatus: domain.BankStatusAccepted,
	}
	for _, m := range mods {
		m(p)
	}
	if err := s.InsertPartner(context.Background(), p); err != nil {
		t.Fatalf("insert partner: %v", err)
	}
	return p
}

func Accumulator(t testing.TB, s *repository.Store, p *domain.Partner, l *domain.Link, mods ...func(*domain.PartnerLinkAccumulated)) *domain.PartnerLinkAccumulated {
	t.Helper()
	a := &domain.PartnerLinkAccumulated{
		PartnerID:     p.ID,
		LinkID:        l.ID,
		CampaignID:    l.CampaignID,
		PercentageCPA: 0.5,
		PartnerLevel:  p.Level,
		CurrencyLocal: currency.USD,
		Trackers:      domain.FullTrackers(),
		Status:        domain.AccumulatorActive,
	}
	for _, m := range mods {
		m(a)
	}
	if err := s.InsertAccumulator(context.Background(), a); err != nil {
		t.Fatalf("insert accumulator: %v", err)
	}
	return a
}

// Rates builds a full cross-rate matrix from USDPrices.
func Rates() domain.RateMatrix {
	var m domain.RateMatrix
	for from, pf := range USDPrices {
		for to, pt := range USDPrices {
			m[from][to] = pt / pf
		}
	}
	return m
}

// FxSnapshot stores a snapshot built from Rates at the given instant.
func FxSnapshot(t testing.TB, s *repository.Store, at time.Time, fxPercentage float64) *domain.FxSnapshot {
	t.Helper()
	snap := &domain.FxSnapshot{CreatedAt: at, FxPercentage: fxPercentage, Rates: Rates()}
	if err := s.InsertFxSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("insert fx snapshot: %v", err)
	}
	return snap
}

// Day returns midnight UTC of the given date.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Ptr[T any](v T) *T { return &v }
