package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/fx"
	"github.com/betenlace/affiliates/internal/repository"
)

// sums are the month's per-currency totals for one partner.
type sums struct {
	fixed       [currency.Count]decimal.Decimal
	usd         [currency.Count]decimal.Decimal
	localAmount decimal.Decimal
	localCode   currency.Code
	cpa         int
}

func (m *sums) applyTo(a *domain.WithdrawalAccumulation) {
	for _, c := range currency.All() {
		a.Totals.FixedIncome[c] = m.fixed[c].Round(2).InexactFloat64()
		if c != currency.USD {
			a.Totals.FixedIncomeUSD[c] = m.usd[c].Round(2).InexactFloat64()
		}
	}
	a.FixedIncomeLocal = m.localAmount.Round(2).InexactFloat64()
	a.CPACount = m.cpa
}

type counterDelta struct {
	fixedIncome, fixedIncomeLocal float64
}

// recompute rewrites the partner's daily rows of the month under the current
// FX snapshot and level percentage, then sums them. This is the only path
// that rewrites daily rows after their day was ingested.
func (s *Service) recompute(ctx context.Context, q *repository.Queries, p *domain.Partner, dailies []repository.PartnerDailyWithContext, month time.Time) (*sums, error) {
	out := &sums{}
	if len(dailies) == 0 {
		return out, nil
	}

	snap, err := fx.LatestAt(ctx, q, s.now())
	if err != nil {
		return nil, err
	}

	var (
		factor    float64
		hasFactor bool
		campaigns = map[string]*domain.Campaign{}
		deltas    = map[string]*counterDelta{}
		rePct     = map[string]bool{}
	)
	for _, d := range dailies {
		r := d.Report
		acc := d.Accumulator

		c, ok := campaigns[d.CampaignID]
		if !ok {
			if c, err = q.GetCampaignByID(ctx, d.CampaignID); err != nil {
				return nil, err
			}
			campaigns[d.CampaignID] = c
		}

		pct := acc.PercentageCPA
		if !acc.IsPercentageCustom {
			if !hasFactor {
				if factor, err = q.GetLevelPercentage(ctx, p.Level); err != nil {
					return nil, err
				}
				hasFactor = true
			}
			pct = c.DefaultPercentage * factor
			if !rePct[acc.ID] && (pct != acc.PercentageCPA || acc.PartnerLevel != p.Level) {
				if err := q.UpdateAccumulatorPercentage(ctx, acc.ID, pct, p.Level); err != nil {
					return nil, err
				}
			}
			rePct[acc.ID] = true
		}

		fxFixedIncome, err := snap.PartnerRate(r.CurrencyFixedIncome, r.CurrencyLocal)
		if err != nil {
			return nil, err
		}
		fxCondition, err := snap.PartnerRate(c.CurrencyCondition, r.CurrencyLocal)
		if err != nil {
			return nil, err
		}

		unitary := c.FixedIncomeUnitary * pct
		fixedIncome := float64(r.CPACount) * unitary
		// Revenue-share-only days were written with no fixed income.
		if r.CPACount > 0 && r.FixedIncome == 0 && r.FixedIncomeUnitary > 0 {
			fixedIncome = 0
		}
		oldFixed, oldLocal := r.FixedIncome, r.FixedIncomeLocal

		r.PercentageCPA = pct
		r.FixedIncomeUnitary = unitary
		r.FixedIncomeUnitaryLocal = unitary * fxFixedIncome
		r.FixedIncome = fixedIncome
		r.FixedIncomeLocal = fixedIncome * fxFixedIncome
		r.FxBookLocal = fxFixedIncome
		r.FxBookNetRevenueLocal = fxCondition
		r.FxPercentage = snap.FxPercentage
		r.Adviser = p.AdviserSplit().Apply(fixedIncome, r.NetRevenue, fxFixedIncome, fxCondition)
		r.Referred = p.ReferredSplit().Apply(fixedIncome, r.NetRevenue, fxFixedIncome, fxCondition)
		if err := q.UpsertPartnerDaily(ctx, &r); err != nil {
			return nil, err
		}

		delta := deltas[acc.ID]
		if delta == nil {
			delta = &counterDelta{}
			deltas[acc.ID] = delta
		}
		delta.fixedIncome += r.FixedIncome - oldFixed
		delta.fixedIncomeLocal += r.FixedIncomeLocal - oldLocal

		code := r.CurrencyFixedIncome
		amount := decimal.NewFromFloat(r.FixedIncome)
		out.fixed[code] = out.fixed[code].Add(amount)
		if code != currency.USD {
			toUSD, err := snap.Rate(code, currency.USD)
			if err != nil {
				return nil, err
			}
			out.usd[code] = out.usd[code].Add(amount.Mul(decimal.NewFromFloat(toUSD)))
		}
		out.localAmount = out.localAmount.Add(decimal.NewFromFloat(r.FixedIncomeLocal))
		out.localCode = r.CurrencyLocal
		out.cpa += r.CPACount
	}

	// Keep month-to-date counters equal to the sum of their rewritten days.
	for id, d := range deltas {
		if d.fixedIncome == 0 && d.fixedIncomeLocal == 0 {
			continue
		}
		acc, err := q.GetAccumulator(ctx, id)
		if err != nil {
			return nil, err
		}
		if !sameMonth(acc.Period, month) {
			continue
		}
		acc.FixedIncome += d.fixedIncome
		acc.FixedIncomeLocal += d.fixedIncomeLocal
		if err := q.UpdateAccumulatorCounters(ctx, acc); err != nil {
			return nil, err
		}
	}
	return out, nil
}
