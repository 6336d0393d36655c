package ingestion_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/alerting"
	"github.com/betenlace/affiliates/internal/bookmaker"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/ingestion"
	"github.com/betenlace/affiliates/internal/repository"
	"github.com/betenlace/affiliates/internal/testutil"
)

type stubAdapter struct {
	rows      []bookmaker.RawRow
	warnings  []string
	err       error
	intraDay  bool
	threshold float64

	mu    sync.Mutex
	dates []time.Time
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Fetch(_ context.Context, date time.Time) ([]bookmaker.RawRow, []string, error) {
	a.mu.Lock()
	a.dates = append(a.dates, date)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.warnings, a.err
	}
	// Callers may mutate rows; hand out copies.
	out := make([]bookmaker.RawRow, len(a.rows))
	for i, r := range a.rows {
		cp := bookmaker.RawRow{}
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, a.warnings, nil
}

func (a *stubAdapter) RevenueThreshold() float64 { return a.threshold }
func (a *stubAdapter) ExposesPunters() bool      { return true }
func (a *stubAdapter) ExposesMembers() bool      { return false }
func (a *stubAdapter) IntraDay() bool            { return a.intraDay }
func (a *stubAdapter) DropZeroRows() bool        { return false }
func (a *stubAdapter) RevenueShareOnly() bool    { return false }

type alert struct {
	sev alerting.Severity
	msg string
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []alert
}

func (s *recordingSink) Send(_ context.Context, sev alerting.Severity, msg, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert{sev, msg})
}

func (s *recordingSink) bySeverity(sev alerting.Severity) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.alerts {
		if a.sev == sev {
			out = append(out, a.msg)
		}
	}
	return out
}

// now is 2024-03-06 09:00 UTC, so the default run date is 2024-03-05.
var now = time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *repository.Store
	svc     *ingestion.Service
	sink    *recordingSink
	adapter *stubAdapter
	link    *domain.Link
}

func newFixture(t *testing.T, adapter *stubAdapter) *fixture {
	t.Helper()
	s := testutil.NewStore(t)
	c := testutil.Campaign(t, s, "betplay_co")
	l := testutil.Link(t, s, c.ID, "P1")

	reg, err := bookmaker.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reg.Register("betplay_co", adapter)
	sink := &recordingSink{}
	svc := ingestion.NewService(s, reg, sink, 5, ingestion.WithClock(func() time.Time { return now }))
	return &fixture{store: s, svc: svc, sink: sink, adapter: adapter, link: l}
}

func feedRows() []bookmaker.RawRow {
	return []bookmaker.RawRow{
		{bookmaker.ColPromCode: "P1", bookmaker.ColPunterID: "u1", bookmaker.ColDate: "2024-03-05",
			bookmaker.ColDeposit: "20", bookmaker.ColRevenueShare: "40"},
		{bookmaker.ColPromCode: "P1", bookmaker.ColPunterID: "u2", bookmaker.ColDate: "2024-03-05",
			bookmaker.ColDeposit: "5", bookmaker.ColRevenueShare: "3"},
		{bookmaker.ColPromCode: "NOPE", bookmaker.ColPunterID: "u3", bookmaker.ColDate: "2024-03-05"},
	}
}

func TestMissingFxAbortsWithoutWrites(t *testing.T) {
	f := newFixture(t, &stubAdapter{rows: feedRows(), threshold: 35})

	_, err := f.svc.Run(context.Background(), "betplay_co")
	if !errors.Is(err, domain.ErrNoFxAvailable) {
		t.Fatalf("expected ErrNoFxAvailable, got %v", err)
	}
	if len(f.adapter.dates) != 0 {
		t.Fatalf("bookmaker was called without an fx snapshot")
	}
	errs := f.sink.bySeverity(alerting.Error)
	if len(errs) != 1 || !strings.Contains(errs[0], "ConfigMissing") {
		t.Fatalf("expected one ERROR alert, got %v", errs)
	}

	ctx := context.Background()
	if m, _ := f.store.GetMonthly(ctx, f.link.ID); m != nil {
		t.Fatalf("monthly row written: %+v", m)
	}
	daily, _ := f.store.GetDailyReports(ctx, []string{f.link.ID}, testutil.Day(2024, 3, 5))
	accounts, _ := f.store.GetAccountReports(ctx, []string{f.link.ID}, []string{"u1", "u2"})
	if len(daily) != 0 || len(accounts) != 0 {
		t.Fatalf("failed run wrote %d daily rows and %d accounts", len(daily), len(accounts))
	}
}

func TestRunIngestsYesterdayAndIsIdempotent(t *testing.T) {
	f := newFixture(t, &stubAdapter{rows: feedRows(), threshold: 35})
	testutil.FxSnapshot(t, f.store, time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), 0.95)
	ctx := context.Background()

	sum, err := f.svc.Run(ctx, "betplay_co")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Date != "2024-03-05" || !f.adapter.dates[0].Equal(testutil.Day(2024, 3, 5)) {
		t.Fatalf("wrong run date: %s / %v", sum.Date, f.adapter.dates)
	}
	if sum.Fetched != 3 || sum.Rows != 3 || sum.Result.Links != 1 || sum.Result.CPAHouse != 1 {
		t.Fatalf("summary: %+v result %+v", sum, sum.Result)
	}
	if len(sum.Warnings) != 1 || !strings.Contains(sum.Warnings[0], "NOPE") {
		t.Fatalf("expected unknown link warning, got %v", sum.Warnings)
	}
	if w := f.sink.bySeverity(alerting.Warning); len(w) != 1 {
		t.Fatalf("warnings must be flushed as one message, got %d", len(w))
	}
	if info := f.sink.bySeverity(alerting.Info); len(info) != 2 {
		t.Fatalf("expected start and summary notifications, got %v", info)
	}

	first, _ := f.store.GetMonthly(ctx, f.link.ID)
	if _, err := f.svc.Run(ctx, "betplay_co"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := f.store.GetMonthly(ctx, f.link.ID)
	if first.Totals != second.Totals || second.CPACount != 1 || second.Deposit != 25 {
		t.Fatalf("re-run changed monthly: %+v -> %+v", first.Totals, second.Totals)
	}
}

func TestIntraDayRunsToday(t *testing.T) {
	f := newFixture(t, &stubAdapter{intraDay: true})
	testutil.FxSnapshot(t, f.store, time.Date(2024, 3, 6, 6, 0, 0, 0, time.UTC), 0.95)

	sum, err := f.svc.Run(context.Background(), "betplay_co")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Date != "2024-03-06" {
		t.Fatalf("intra-day run date: %s", sum.Date)
	}
}

func TestUpstreamFailureFlushesWarningsAndAlerts(t *testing.T) {
	f := newFixture(t, &stubAdapter{
		err:      &domain.UpstreamError{Source: "stub", Status: 502, Err: errors.New("bad gateway")},
		warnings: []string{"stub: dropped 2 Not Registered row(s)"},
	})
	testutil.FxSnapshot(t, f.store, time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), 0.95)

	sum, err := f.svc.Run(context.Background(), "betplay_co")
	if domain.Classify(err) != domain.KindUpstreamUnavailable {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(sum.Warnings) != 1 {
		t.Fatalf("adapter warnings lost: %v", sum.Warnings)
	}
	if len(f.sink.bySeverity(alerting.Warning)) != 1 || len(f.sink.bySeverity(alerting.Error)) != 1 {
		t.Fatalf("alerts: %+v", f.sink.alerts)
	}
}

func TestRunAllCollectsFailures(t *testing.T) {
	f := newFixture(t, &stubAdapter{rows: feedRows(), threshold: 35})
	testutil.FxSnapshot(t, f.store, time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), 0.95)

	errs := f.svc.RunAll(context.Background(), []string{"betplay_co", "missing_campaign"}, 2)
	if len(errs) != 1 {
		t.Fatalf("expected one failure, got %v", errs)
	}
	if err := errs["missing_campaign"]; !ingestion.IsConfigError(err) {
		t.Fatalf("missing campaign error: %v", err)
	}
	if m, _ := f.store.GetMonthly(context.Background(), f.link.ID); m == nil || m.CPACount != 1 {
		t.Fatalf("betplay_co was not ingested: %+v", m)
	}
}

func TestEarlierSnapshotIsEnoughToRun(t *testing.T) {
	f := newFixture(t, &stubAdapter{rows: feedRows(), threshold: 35})
	testutil.FxSnapshot(t, f.store, time.Date(2024, 2, 20, 6, 0, 0, 0, time.UTC), 0.95)

	sum, err := f.svc.Run(context.Background(), "betplay_co")
	if err != nil {
		t.Fatalf("a snapshot before the run date must be used: %v", err)
	}
	if len(f.adapter.dates) != 1 || sum.Result.CPAHouse != 1 {
		t.Fatalf("summary: %+v", sum)
	}
	daily, _ := f.store.GetDailyReports(context.Background(), []string{f.link.ID}, testutil.Day(2024, 3, 5))
	if d := daily[f.link.ID]; d == nil || d.FxPartnerID == nil {
		t.Fatalf("daily row without fx snapshot: %+v", d)
	}
}
