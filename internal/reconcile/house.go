package reconcile

import (
	"context"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/repository"
)

// houseTotals builds the link's day aggregate. Member rows are
// authoritative; without them the punter rows are grouped.
func houseTotals(in Input, day time.Time, w linkWork, credited int) domain.Totals {
	var t domain.Totals
	if len(w.members) > 0 {
		supplied := false
		for _, m := range w.members {
			t.Deposit += m.Deposit
			t.Stake += m.Stake
			t.NetRevenue += m.NetRevenue
			t.RevenueShare += m.RevenueShare
			t.RegisteredCount += domain.IntOr(m.RegisteredCount, 0)
			t.FirstDepositCount += domain.IntOr(m.FirstDepositCount, 0)
			t.WageringCount += domain.IntOr(m.WageringCount, 0)
			if m.CPACount != nil {
				supplied = true
				t.CPACount += *m.CPACount
			}
		}
		if !supplied {
			t.CPACount = credited
		}
	} else {
		for _, p := range w.punters {
			t.Deposit += p.Deposit
			t.Stake += p.Stake
			t.NetRevenue += p.NetRevenue
			t.RevenueShare += p.RevenueShare
			t.RegisteredCount += countOr(p.RegisteredCount, p.RegisteredAt != nil && sameDay(*p.RegisteredAt, day))
			t.FirstDepositCount += countOr(p.FirstDepositCount, p.FirstDepositAt != nil && sameDay(*p.FirstDepositAt, day))
			t.WageringCount += countOr(p.WageringCount, p.Stake > 0)
		}
		t.CPACount = credited
	}
	if !in.Policy.RevenueShareOnly {
		t.FixedIncome = float64(t.CPACount) * in.Campaign.FixedIncomeUnitary
	}
	return t
}

// countOr is the supplied count, or 1 when derived is true.
func countOr(supplied *int, derived bool) int {
	if supplied != nil {
		return *supplied
	}
	if derived {
		return 1
	}
	return 0
}

// updateHouse overwrites the day's house row and moves the month-to-date
// row by the difference.
func (r *Reconciler) updateHouse(ctx context.Context, q *repository.Queries, in Input, st *dayState, b *domain.LinkBundle, totals domain.Totals, res *Result) (*domain.BetenlaceDailyReport, error) {
	prev := st.dailies[b.Link.ID]
	fxID := in.Fx.ID
	daily := &domain.BetenlaceDailyReport{
		LinkID:              b.Link.ID,
		Date:                st.day,
		CurrencyCondition:   in.Campaign.CurrencyCondition,
		CurrencyFixedIncome: in.Campaign.CurrencyFixedIncome,
		FixedIncomeUnitary:  in.Campaign.FixedIncomeUnitary,
		FxPartnerID:         &fxID,
		Totals:              totals,
	}
	if prev != nil {
		daily.ID = prev.ID
		daily.ClickCount = prev.ClickCount
	}
	if err := q.UpsertDaily(ctx, daily); err != nil {
		return nil, err
	}

	monthly := b.Monthly
	delta := totals
	switch {
	case monthly == nil:
		monthly = &domain.BetenlaceCPA{LinkID: b.Link.ID, Period: st.month}
	case monthly.Period.Before(st.month):
		monthly.Period = st.month
		monthly.Totals = domain.Totals{}
	case monthly.Period.After(st.month):
		res.warn("%s is in a closed month for link %s (month-to-date is %s); only the daily row was updated",
			st.day.Format("2006-01-02"), b.Link.PromCode, monthly.Period.Format("2006-01"))
		return daily, nil
	default:
		if prev != nil {
			delta = totals.Sub(prev.Totals)
		}
	}
	monthly.Totals = monthly.Totals.Add(delta)
	if err := q.UpsertMonthly(ctx, monthly); err != nil {
		return nil, err
	}
	b.Monthly = monthly
	return daily, nil
}

// updatePartner writes the partner's day row and moves the accumulator's
// month-to-date counters by the difference.
func (r *Reconciler) updatePartner(ctx context.Context, q *repository.Queries, in Input, st *dayState, b *domain.LinkBundle, daily *domain.BetenlaceDailyReport, cpaPartner int, res *Result) error {
	acc := b.Accumulator
	c := in.Campaign

	fxFixedIncome, err := in.Fx.PartnerRate(c.CurrencyFixedIncome, acc.CurrencyLocal)
	if err != nil {
		return err
	}
	fxCondition, err := in.Fx.PartnerRate(c.CurrencyCondition, acc.CurrencyLocal)
	if err != nil {
		return err
	}

	unitary := c.FixedIncomeUnitary * acc.PercentageCPA
	fixedIncome := float64(cpaPartner) * unitary
	if in.Policy.RevenueShareOnly {
		fixedIncome = 0
	}

	prev := st.partners[acc.ID]
	var adviser, referred domain.Attribution
	switch {
	case prev != nil:
		adviser, referred = prev.Adviser, prev.Referred
	case b.Partner != nil:
		adviser, referred = b.Partner.AdviserSplit(), b.Partner.ReferredSplit()
	}

	tr := acc.Trackers
	report := &domain.PartnerLinkDailyReport{
		PartnerLinkID:           acc.ID,
		BetenlaceDailyID:        daily.ID,
		PartnerID:               acc.PartnerID,
		Date:                    st.day,
		CurrencyFixedIncome:     c.CurrencyFixedIncome,
		CurrencyLocal:           acc.CurrencyLocal,
		PercentageCPA:           acc.PercentageCPA,
		FixedIncomeUnitary:      unitary,
		FixedIncomeUnitaryLocal: unitary * fxFixedIncome,
		FixedIncome:             fixedIncome,
		FixedIncomeLocal:        fixedIncome * fxFixedIncome,
		FxBookLocal:             fxFixedIncome,
		FxBookNetRevenueLocal:   fxCondition,
		FxPercentage:            in.Fx.FxPercentage,
		CPACount:                cpaPartner,
		Deposit:                 trackAmount(daily.Deposit, tr.TrackerDeposit),
		RegisteredCount:         trackCount(daily.RegisteredCount, tr.TrackerRegisteredCount),
		FirstDepositCount:       trackCount(daily.FirstDepositCount, tr.TrackerFirstDepositCount),
		WageringCount:           trackCount(daily.WageringCount, tr.TrackerWageringCount),
		Trackers:                tr,
		Stake:                   daily.Stake,
		NetRevenue:              daily.NetRevenue,
		RevenueShare:            daily.RevenueShare,
		Adviser:                 adviser.Apply(fixedIncome, daily.NetRevenue, fxFixedIncome, fxCondition),
		Referred:                referred.Apply(fixedIncome, daily.NetRevenue, fxFixedIncome, fxCondition),
	}
	if prev != nil {
		report.ID = prev.ID
	}
	if err := q.UpsertPartnerDaily(ctx, report); err != nil {
		return err
	}
	res.PartnerRows++

	cpa, fi, fiLocal := report.CPACount, report.FixedIncome, report.FixedIncomeLocal
	switch {
	case acc.Period.IsZero() || acc.Period.Before(st.month):
		acc.Period = st.month
		acc.CPACount, acc.FixedIncome, acc.FixedIncomeLocal = 0, 0, 0
	case acc.Period.After(st.month):
		res.warn("%s is in a closed month for accumulator %s; counters left at %s",
			st.day.Format("2006-01-02"), acc.ID, acc.Period.Format("2006-01"))
		return nil
	default:
		if prev != nil {
			cpa -= prev.CPACount
			fi -= prev.FixedIncome
			fiLocal -= prev.FixedIncomeLocal
		}
	}
	acc.CPACount += cpa
	acc.FixedIncome += fi
	acc.FixedIncomeLocal += fiLocal
	return q.UpdateAccumulatorCounters(ctx, acc)
}

// trackCount scales a count by a tracker. Counts of 0 and 1 pass through.
func trackCount(v int, tracker float64) int {
	if v > 1 {
		return floorScaled(v, tracker)
	}
	return v
}

// trackAmount scales an amount by a tracker without flooring.
func trackAmount(v, tracker float64) float64 {
	if v > 1 {
		return v * tracker
	}
	return v
}
