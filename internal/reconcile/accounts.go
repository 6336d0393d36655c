package reconcile

import (
	"context"
	"math"

	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/repository"
)

// updateAccounts applies the link's punter rows to their account reports and
// returns the accounts credited on the run's day, in row order. A re-run of
// the same day subtracts what the day contributed before. When the link is
// gated, cpa_partner of accounts the day already credited is left as is.
func (r *Reconciler) updateAccounts(ctx context.Context, q *repository.Queries, in Input, st *dayState, w linkWork, partnerActive, gated bool, res *Result) ([]*domain.AccountReport, error) {
	if len(w.punters) == 0 {
		return nil, nil
	}
	b := w.bundle
	day := st.day.Format("2006-01-02")
	threshold := in.Policy.RevenueThreshold

	var credited []*domain.AccountReport
	for _, row := range w.punters {
		key := repository.AccountKey(b.Link.ID, row.PunterID)
		acc := st.accounts[key]
		var prev *domain.AccountContribution
		if acc == nil {
			acc = &domain.AccountReport{
				LinkID:              b.Link.ID,
				PunterID:            row.PunterID,
				CurrencyCondition:   in.Campaign.CurrencyCondition,
				CurrencyFixedIncome: in.Campaign.CurrencyFixedIncome,
			}
			st.accounts[key] = acc
		} else if prev = st.contribs[acc.ID]; prev != nil {
			acc.Deposit -= prev.Deposit
			acc.Stake -= prev.Stake
			acc.NetRevenue -= prev.NetRevenue
			acc.RevenueShare -= prev.RevenueShare
		}
		// Whether this day credited the punter is kept on the day's
		// contribution; cpa_at can later move to another day.
		creditedBefore := prev != nil && prev.Credited

		contrib := domain.AccountContribution{
			Date:         st.day,
			Deposit:      row.Deposit,
			Stake:        row.Stake,
			NetRevenue:   row.NetRevenue,
			RevenueShare: math.Abs(row.RevenueShare),
		}
		acc.Deposit += contrib.Deposit
		acc.Stake += contrib.Stake
		acc.NetRevenue += contrib.NetRevenue
		acc.RevenueShare += contrib.RevenueShare
		if acc.RegisteredAt == nil {
			acc.RegisteredAt = row.RegisteredAt
		}
		if acc.FirstDepositAt == nil {
			acc.FirstDepositAt = row.FirstDepositAt
		}

		today := false
		if acc.CPABetenlace == 1 {
			today = creditedBefore
			switch {
			case row.CPAAt != nil && acc.CPAAt != nil && !sameMonth(*row.CPAAt, *acc.CPAAt):
				res.warn("punter %s on %s: cpa_at moves from %s to %s, overwritten",
					row.PunterID, w.code, acc.CPAAt.Format("2006-01"), row.CPAAt.Format("2006-01"))
				at := *row.CPAAt
				acc.CPAAt = &at
			case threshold == 0 && domain.IntOr(row.CPACount, 0) > 0 && !today:
				res.warn("punter %s on %s reported as CPA on %s but was already credited", row.PunterID, w.code, day)
			}
		} else if triggers(acc, row, threshold) {
			at := st.day
			if row.CPAAt != nil {
				at = *row.CPAAt
			}
			acc.CPABetenlace = 1
			acc.CPAAt = &at
			if b.Accumulator != nil {
				id := b.Accumulator.ID
				acc.PartnerLinkID = &id
			}
			today = true
		}

		if acc.CPABetenlace == 1 && !in.Policy.RevenueShareOnly {
			acc.FixedIncome = in.Campaign.FixedIncomeUnitary
		}
		if today {
			switch {
			case partnerActive:
				acc.CPAPartner = 1
			case gated && creditedBefore:
				// partner side is frozen while gated
			default:
				acc.CPAPartner = 0
			}
			credited = append(credited, acc)
		}
		contrib.Credited = today

		if err := q.UpsertAccountReport(ctx, acc); err != nil {
			return nil, err
		}
		contrib.AccountReportID = acc.ID
		if err := q.UpsertContribution(ctx, &contrib); err != nil {
			return nil, err
		}
		res.Accounts++
	}
	return credited, nil
}

// triggers reports whether a not yet credited account becomes a CPA.
func triggers(acc *domain.AccountReport, row domain.Row, threshold float64) bool {
	if threshold > 0 {
		return acc.RevenueShare >= threshold
	}
	return domain.IntOr(row.CPACount, 0) >= 1
}

// downCount keeps cpa_partner on the first keep credited accounts and clears
// it on the rest, so the most recently credited lose it first.
func downCount(ctx context.Context, q *repository.Queries, credited []*domain.AccountReport, keep int) error {
	for i := len(credited) - 1; i >= 0; i-- {
		a := credited[i]
		want := 0
		if i < keep {
			want = 1
		}
		if a.CPAPartner == want {
			continue
		}
		a.CPAPartner = want
		if err := q.UpsertAccountReport(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
