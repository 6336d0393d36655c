// Package reconcile folds one day of normalised bookmaker rows for a
// campaign into the account, house and partner tables.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/repository"
)

// Policy carries the per-campaign rules that shape a run.
type Policy struct {
	// RevenueThreshold credits a punter once its cumulative revenue share
	// reaches it. Zero means rows carry cpa_count.
	RevenueThreshold float64
	// RevenueShareOnly campaigns pay no fixed income.
	RevenueShareOnly bool
	// MinCPATrackerDay is the house CPA count a link must exceed on a day
	// before the tracker down-counts the partner's share.
	MinCPATrackerDay int
}

// Input is one (campaign, date) run. Date is midnight in the platform
// location.
type Input struct {
	Campaign *domain.Campaign
	Date     time.Time
	Fx       *domain.FxSnapshot
	Rows     []domain.Row
	Policy   Policy
}

// Result summarises a reconciliation run.
type Result struct {
	Links       int      `json:"links"`
	UnknownLink int      `json:"unknown_links"`
	Accounts    int      `json:"accounts"`
	CPAHouse    int      `json:"cpa_house"`
	CPAPartner  int      `json:"cpa_partner"`
	PartnerRows int      `json:"partner_rows"`
	Gated       int      `json:"gated"`
	OtherDay    int      `json:"other_day_rows"`
	Warnings    []string `json:"warnings,omitempty"`
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Reconciler applies runs against the store. Every write of a run happens in
// one transaction.
type Reconciler struct {
	store *repository.Store
	log   *slog.Logger
}

func New(store *repository.Store) *Reconciler {
	return &Reconciler{store: store, log: slog.With("component", "reconcile")}
}

// Reconcile applies in. Warnings are returned even when the transaction
// fails.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (*Result, error) {
	if in.Campaign == nil {
		return nil, fmt.Errorf("reconcile: %w", domain.ErrCampaignNotFound)
	}
	if in.Fx == nil {
		return nil, fmt.Errorf("reconcile %s: %w", in.Campaign.Title, domain.ErrNoFxAvailable)
	}

	var res *Result
	err := r.store.WithTx(ctx, func(q *repository.Queries) error {
		res = &Result{}
		return r.run(ctx, q, in, res)
	})
	if err != nil {
		return res, fmt.Errorf("reconcile %s %s: %w", in.Campaign.Title, in.Date.Format("2006-01-02"), err)
	}

	r.log.Info("reconciled",
		"campaign", in.Campaign.Title,
		"date", in.Date.Format("2006-01-02"),
		"links", res.Links,
		"accounts", res.Accounts,
		"cpa_house", res.CPAHouse,
		"cpa_partner", res.CPAPartner,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// linkWork is what one link receives in a run.
type linkWork struct {
	code    string
	bundle  *domain.LinkBundle
	members []domain.Row
	punters []domain.Row
}

// dayState is everything loaded up front for the run.
type dayState struct {
	day      time.Time
	month    time.Time
	accounts map[string]*domain.AccountReport
	contribs map[string]*domain.AccountContribution
	dailies  map[string]*domain.BetenlaceDailyReport
	partners map[string]*domain.PartnerLinkDailyReport
}

func (r *Reconciler) run(ctx context.Context, q *repository.Queries, in Input, res *Result) error {
	day := midnight(in.Date.In(q.Location()))
	works := group(onDay(in.Rows, day, q.Location(), res))

	codes := make([]string, len(works))
	for i, w := range works {
		codes[i] = w.code
	}
	bundles, err := q.LoadLinkBundles(ctx, in.Campaign.ID, codes)
	if err != nil {
		return err
	}

	var linkIDs, punterIDs, accumulatorIDs []string
	known := works[:0]
	for _, w := range works {
		b := bundles[w.code]
		if b == nil {
			res.UnknownLink++
			res.warn("unknown prom_code %q for campaign %s, skipped", w.code, in.Campaign.Title)
			continue
		}
		w.bundle = b
		known = append(known, w)
		linkIDs = append(linkIDs, b.Link.ID)
		if b.Accumulator != nil {
			accumulatorIDs = append(accumulatorIDs, b.Accumulator.ID)
		}
		for _, p := range w.punters {
			punterIDs = append(punterIDs, p.PunterID)
		}
	}

	st := &dayState{day: day, month: firstOfMonth(day)}
	if st.dailies, err = q.GetDailyReports(ctx, linkIDs, day); err != nil {
		return err
	}
	if st.partners, err = q.GetPartnerDailyReports(ctx, accumulatorIDs, day); err != nil {
		return err
	}
	if st.accounts, err = q.GetAccountReports(ctx, linkIDs, unique(punterIDs)); err != nil {
		return err
	}
	accountIDs := make([]string, 0, len(st.accounts))
	for _, a := range st.accounts {
		accountIDs = append(accountIDs, a.ID)
	}
	if st.contribs, err = q.GetContributions(ctx, accountIDs, day); err != nil {
		return err
	}

	for _, w := range known {
		if err := r.reconcileLink(ctx, q, in, st, w, res); err != nil {
			return fmt.Errorf("link %s: %w", w.code, err)
		}
		res.Links++
	}
	return nil
}

func (r *Reconciler) reconcileLink(ctx context.Context, q *repository.Queries, in Input, st *dayState, w linkWork, res *Result) error {
	b := w.bundle
	acc := b.Accumulator
	gated := acc != nil && acc.PartnerGated(in.Campaign, st.day)
	if gated {
		res.Gated++
		res.warn("partner side of %s skipped on %s: accumulator %s is gated (status %s, campaign %s)",
			w.code, st.day.Format("2006-01-02"), acc.ID, acc.Status, in.Campaign.Status)
	}
	partnerActive := acc != nil && !gated

	// Account scope: today's credited punters, in row order.
	credited, err := r.updateAccounts(ctx, q, in, st, w, partnerActive, gated, res)
	if err != nil {
		return err
	}

	totals := houseTotals(in, st.day, w, len(credited))
	cpaHouse := totals.CPACount
	cpaPartner := 0
	if partnerActive {
		cpaPartner = partnerCPA(cpaHouse, acc.Trackers.Tracker, in.Policy.MinCPATrackerDay)
	}
	res.CPAHouse += cpaHouse

	if !gated {
		if err := downCount(ctx, q, credited, cpaPartner); err != nil {
			return err
		}
	}

	daily, err := r.updateHouse(ctx, q, in, st, b, totals, res)
	if err != nil {
		return err
	}
	if !partnerActive {
		return nil
	}
	if err := r.updatePartner(ctx, q, in, st, b, daily, cpaPartner, res); err != nil {
		return err
	}
	res.CPAPartner += cpaPartner
	return nil
}

// partnerCPA applies the tracker to the house count once the day is busy
// enough.
func partnerCPA(cpaHouse int, tracker float64, minPerDay int) int {
	if cpaHouse > minPerDay {
		return floorScaled(cpaHouse, tracker)
	}
	return cpaHouse
}

// floorScaled is floor(v * f), tolerant of binary rounding just below an
// integer.
func floorScaled(v int, f float64) int {
	return int(math.Floor(float64(v)*f + 1e-9))
}

// onDay drops rows dated on another day than the run's.
func onDay(rows []domain.Row, day time.Time, loc *time.Location, res *Result) []domain.Row {
	out := make([]domain.Row, 0, len(rows))
	skipped := map[string]int{}
	var dates []string
	for _, row := range rows {
		if row.Date.IsZero() || sameDay(row.Date.In(loc), day) {
			out = append(out, row)
			continue
		}
		d := row.Date.In(loc).Format("2006-01-02")
		if skipped[d] == 0 {
			dates = append(dates, d)
		}
		skipped[d]++
	}
	for _, d := range dates {
		res.OtherDay += skipped[d]
		res.warn("%d row(s) dated %s skipped in the run for %s", skipped[d], d, day.Format("2006-01-02"))
	}
	return out
}

// group splits rows by prom_code in first-seen order. Account rows for the
// same punter are merged.
func group(rows []domain.Row) []linkWork {
	var out []linkWork
	index := map[string]int{}
	punterIndex := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.PromCode]
		if !ok {
			i = len(out)
			index[row.PromCode] = i
			out = append(out, linkWork{code: row.PromCode})
		}
		w := &out[i]
		if !row.IsAccount() {
			w.members = append(w.members, row)
			continue
		}
		key := row.PromCode + "|" + row.PunterID
		if j, ok := punterIndex[key]; ok {
			merge(&w.punters[j], row)
			continue
		}
		punterIndex[key] = len(w.punters)
		w.punters = append(w.punters, row)
	}
	return out
}

func merge(dst *domain.Row, src domain.Row) {
	dst.Deposit += src.Deposit
	dst.Stake += src.Stake
	dst.RevenueShare += src.RevenueShare
	dst.NetRevenue += src.NetRevenue
	dst.RegisteredAt = earliest(dst.RegisteredAt, src.RegisteredAt)
	dst.FirstDepositAt = earliest(dst.FirstDepositAt, src.FirstDepositAt)
	dst.CPAAt = earliest(dst.CPAAt, src.CPAAt)
	dst.CPACount = addCount(dst.CPACount, src.CPACount)
	dst.RegisteredCount = addCount(dst.RegisteredCount, src.RegisteredCount)
	dst.FirstDepositCount = addCount(dst.FirstDepositCount, src.FirstDepositCount)
	dst.WageringCount = addCount(dst.WageringCount, src.WageringCount)
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	}
	return a
}

func addCount(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	n := domain.IntOr(a, 0) + domain.IntOr(b, 0)
	return &n
}

func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
