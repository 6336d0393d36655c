package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/repository"
	"github.com/betenlace/affiliates/internal/testutil"
)

func TestLoadLinkBundles(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	c := testutil.Campaign(t, s, "betplay_co")
	withPartner := testutil.Link(t, s, c.ID, "P1")
	testutil.Link(t, s, c.ID, "P2")
	p := testutil.Partner(t, s)
	acc := testutil.Accumulator(t, s, p, withPartner)

	if err := s.UpsertMonthly(ctx, &domain.BetenlaceCPA{
		LinkID: withPartner.ID,
		Period: testutil.Day(2024, 3, 1),
		Totals: domain.Totals{Deposit: 10, CPACount: 2},
	}); err != nil {
		t.Fatalf("upsert monthly: %v", err)
	}

	bundles, err := s.LoadLinkBundles(ctx, c.ID, []string{"P1", "P2", "UNKNOWN"})
	if err != nil {
		t.Fatalf("load bundles: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(bundles))
	}
	b := bundles["P1"]
	if b.Accumulator == nil || b.Accumulator.ID != acc.ID || b.Partner == nil || b.Partner.ID != p.ID {
		t.Fatalf("P1 bundle missing partner side: %+v", b)
	}
	if b.Monthly == nil || b.Monthly.CPACount != 2 || !b.Monthly.Period.Equal(testutil.Day(2024, 3, 1)) {
		t.Fatalf("P1 monthly: %+v", b.Monthly)
	}
	if bundles["P2"].Accumulator != nil || bundles["P2"].Monthly != nil {
		t.Fatalf("P2 should have no accumulator or monthly row")
	}
}

func TestUpsertDailyKeepsClickCount(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	c := testutil.Campaign(t, s, "codere_mx")
	l := testutil.Link(t, s, c.ID, "P1")
	day := testutil.Day(2024, 3, 5)

	d := &domain.BetenlaceDailyReport{LinkID: l.ID, Date: day, CurrencyCondition: currency.USD,
		CurrencyFixedIncome: currency.USD, Totals: domain.Totals{Deposit: 5}}
	if err := s.UpsertDaily(ctx, d); err != nil {
		t.Fatalf("insert daily: %v", err)
	}
	if err := s.SetClickCount(ctx, d.ID, 42); err != nil {
		t.Fatalf("set clicks: %v", err)
	}

	d.Deposit = 9
	if err := s.UpsertDaily(ctx, d); err != nil {
		t.Fatalf("overwrite daily: %v", err)
	}
	got, err := s.GetDailyReports(ctx, []string{l.ID}, day)
	if err != nil {
		t.Fatalf("get daily: %v", err)
	}
	row := got[l.ID]
	if row == nil || row.Deposit != 9 {
		t.Fatalf("deposit not overwritten: %+v", row)
	}
	if row.ClickCount == nil || *row.ClickCount != 42 {
		t.Fatalf("click count lost on overwrite: %v", row.ClickCount)
	}
}

func TestFxSnapshotLookup(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	first := testutil.FxSnapshot(t, s, time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC), 0.95)
	second := testutil.FxSnapshot(t, s, time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 0.9)

	got, err := s.FirstFxSnapshotFrom(ctx, testutil.Day(2024, 3, 3))
	if err != nil || got == nil || got.ID != second.ID {
		t.Fatalf("first from 3rd: %+v, %v", got, err)
	}
	if got.Rates[currency.USD][currency.COP] != 4000 {
		t.Fatalf("rates not round-tripped: %v", got.Rates[currency.USD][currency.COP])
	}
	got, err = s.LastFxSnapshotUntil(ctx, testutil.Day(2024, 3, 3))
	if err != nil || got == nil || got.ID != first.ID {
		t.Fatalf("last until 3rd: %+v, %v", got, err)
	}
	got, err = s.FirstFxSnapshotFrom(ctx, testutil.Day(2024, 4, 1))
	if err != nil || got != nil {
		t.Fatalf("expected no snapshot after april: %+v, %v", got, err)
	}

	exists, err := s.FxSnapshotExists(ctx, testutil.Day(2024, 3, 4), testutil.Day(2024, 3, 5))
	if err != nil || !exists {
		t.Fatalf("snapshot on the 4th should exist: %v, %v", exists, err)
	}
}

func TestUpdateBillRefusesPayed(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	p := testutil.Partner(t, s)
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	b := &domain.WithdrawalBill{
		PartnerID:     p.ID,
		BilledFromAt:  testutil.Day(2024, 3, 1),
		BilledToAt:    testutil.Day(2024, 3, 31),
		CurrencyLocal: currency.COP,
		Status:        domain.BillToPay,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.Totals.FixedIncome[currency.COP] = 250000
	b.Totals.FixedIncomeUSD[currency.COP] = 62.5
	if err := s.InsertBill(ctx, b); err != nil {
		t.Fatalf("insert bill: %v", err)
	}

	open, err := s.GetOpenBill(ctx, p.ID)
	if err != nil || open == nil || open.ID != b.ID {
		t.Fatalf("open bill: %+v, %v", open, err)
	}
	if open.Totals.FixedIncomeUSD[currency.COP] != 62.5 {
		t.Fatalf("usd column not round-tripped: %v", open.Totals.FixedIncomeUSD)
	}

	if err := s.MarkBillPayed(ctx, b.ID, now); err != nil {
		t.Fatalf("mark payed: %v", err)
	}
	b.FixedIncomeLocal = 1
	if err := s.UpdateBill(ctx, b); !errors.Is(err, domain.ErrBillPayed) {
		t.Fatalf("expected ErrBillPayed, got %v", err)
	}
	if open, _ := s.GetOpenBill(ctx, p.ID); open != nil {
		t.Fatalf("payed bill must not be open")
	}
}

func TestAccumulationUpsertAndPayedMonth(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	p := testutil.Partner(t, s)
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	b := &domain.WithdrawalBill{PartnerID: p.ID, BilledFromAt: testutil.Day(2024, 3, 1),
		BilledToAt: testutil.Day(2024, 3, 31), Status: domain.BillNotReady, CreatedAt: now, UpdatedAt: now}
	if err := s.InsertBill(ctx, b); err != nil {
		t.Fatalf("insert bill: %v", err)
	}

	march := testutil.Day(2024, 3, 1)
	acc := &domain.WithdrawalAccumulation{BillID: b.ID, AccumAt: march, FixedIncomeLocal: 10, CPACount: 1}
	if err := s.UpsertAccumulation(ctx, acc); err != nil {
		t.Fatalf("upsert accumulation: %v", err)
	}
	acc2 := &domain.WithdrawalAccumulation{BillID: b.ID, AccumAt: march, FixedIncomeLocal: 30, CPACount: 3}
	if err := s.UpsertAccumulation(ctx, acc2); err != nil {
		t.Fatalf("replace accumulation: %v", err)
	}
	list, err := s.ListAccumulations(ctx, b.ID)
	if err != nil || len(list) != 1 || list[0].FixedIncomeLocal != 30 {
		t.Fatalf("accumulations: %+v, %v", list, err)
	}

	if in, _ := s.MonthInPayedBill(ctx, p.ID, march); in {
		t.Fatalf("month should not be settled before payment")
	}
	if err := s.MarkBillPayed(ctx, b.ID, now); err != nil {
		t.Fatalf("mark payed: %v", err)
	}
	if in, _ := s.MonthInPayedBill(ctx, p.ID, march); !in {
		t.Fatalf("month should be settled after payment")
	}
}

func TestAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	if err := s.AcquireLock(ctx, "settlement:p1", "run-a", now); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := s.AcquireLock(ctx, "settlement:p1", "run-b", now.Add(time.Minute)); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if err := s.AcquireLock(ctx, "settlement:p1", "run-b", now.Add(repository.StaleLockAge+time.Minute)); err != nil {
		t.Fatalf("stale lock should be reclaimed: %v", err)
	}
	if err := s.ReleaseLock(ctx, "settlement:p1", "run-b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.AcquireLock(ctx, "settlement:p1", "run-a", now); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q *repository.Queries) error {
		if err := q.InsertCampaign(ctx, &domain.Campaign{Title: "x", Status: domain.CampaignActive}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := s.CountCampaigns(ctx); n != 0 {
		t.Fatalf("rollback left %d campaigns", n)
	}
}

func TestAccountContributions(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	c := testutil.Campaign(t, s, "betsson_pe")
	l := testutil.Link(t, s, c.ID, "P1")
	day := testutil.Day(2024, 3, 5)

	a := &domain.AccountReport{LinkID: l.ID, PunterID: "u1", Deposit: 20, CPABetenlace: 1, CPAAt: &day}
	if err := s.UpsertAccountReport(ctx, a); err != nil {
		t.Fatalf("upsert account: %v", err)
	}
	if err := s.UpsertContribution(ctx, &domain.AccountContribution{AccountReportID: a.ID, Date: day, Deposit: 20, Credited: true}); err != nil {
		t.Fatalf("upsert contribution: %v", err)
	}

	accounts, err := s.GetAccountReports(ctx, []string{l.ID}, []string{"u1", "u2"})
	if err != nil || len(accounts) != 1 {
		t.Fatalf("accounts: %+v, %v", accounts, err)
	}
	got := accounts[repository.AccountKey(l.ID, "u1")]
	if got.CPAAt == nil || !got.CPAAt.Equal(day) || got.CPABetenlace != 1 {
		t.Fatalf("account not round-tripped: %+v", got)
	}

	contribs, err := s.GetContributions(ctx, []string{a.ID}, day)
	if err != nil || contribs[a.ID] == nil || contribs[a.ID].Deposit != 20 || !contribs[a.ID].Credited {
		t.Fatalf("contributions: %+v, %v", contribs, err)
	}
}

func TestApplySeedFixture(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)

	seed, err := repository.LoadSeed("../../testdata/seed.json")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if err := s.ApplySeed(ctx, seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}

	n, err := s.CountCampaigns(ctx)
	if err != nil || n != len(seed.Campaigns) {
		t.Fatalf("campaigns: %d, %v", n, err)
	}
	if f, err := s.GetLevelPercentage(ctx, 2); err != nil || f != 1.2 {
		t.Fatalf("level 2 factor: %v, %v", f, err)
	}
	acc, err := s.GetAccumulator(ctx, seed.Accumulators[1].ID)
	if err != nil {
		t.Fatalf("get accumulator: %v", err)
	}
	if acc.Trackers != domain.FullTrackers() {
		t.Fatalf("missing trackers should default to full: %+v", acc.Trackers)
	}

	// A second apply collides on ids and leaves nothing behind.
	if err := s.ApplySeed(ctx, seed); err == nil {
		t.Fatal("expected duplicate seed to fail")
	}
	if n2, _ := s.CountCampaigns(ctx); n2 != n {
		t.Fatalf("failed seed was partially written: %d campaigns", n2)
	}
}
