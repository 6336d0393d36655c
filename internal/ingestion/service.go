// Package ingestion runs the per-campaign daily job: fetch the bookmaker
// feed, normalise it and reconcile it into the report tables.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betenlace/affiliates/internal/alerting"
	"github.com/betenlace/affiliates/internal/bookmaker"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/fx"
	"github.com/betenlace/affiliates/internal/metrics"
	"github.com/betenlace/affiliates/internal/normalize"
	"github.com/betenlace/affiliates/internal/reconcile"
	"github.com/betenlace/affiliates/internal/repository"
)

// Summary is returned from a finished run.
type Summary struct {
	RunID    string            `json:"run_id"`
	Campaign string            `json:"campaign"`
	Date     string            `json:"date"`
	Fetched  int               `json:"rows_fetched"`
	Rows     int               `json:"rows_reconciled"`
	Result   *reconcile.Result `json:"result,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Service runs ingestion jobs.
type Service struct {
	store      *repository.Store
	registry   *bookmaker.Registry
	normalizer *normalize.Normalizer
	reconciler *reconcile.Reconciler
	sink       alerting.Sink
	minCPA     int
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now, which decides the default run date.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates an ingestion service. minCPATrackerDay is the house CPA
// count above which partner trackers apply.
func NewService(store *repository.Store, registry *bookmaker.Registry, sink alerting.Sink, minCPATrackerDay int, opts ...Option) *Service {
	s := &Service{
		store:      store,
		registry:   registry,
		normalizer: normalize.New(store.Location()),
		reconciler: reconcile.New(store),
		sink:       sink,
		minCPA:     minCPATrackerDay,
		now:        time.Now,
		log:        slog.With("component", "ingestion"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Titles lists the campaigns the service can run.
func (s *Service) Titles() []string { return s.registry.Titles() }

// Run ingests the campaign's default day: yesterday, or today for intra-day
// feeds.
func (s *Service) Run(ctx context.Context, title string) (*Summary, error) {
	adapter, err := s.registry.Get(title)
	if err != nil {
		return s.fail(ctx, &Summary{RunID: uuid.NewString(), Campaign: title}, nil, err)
	}
	day := midnight(s.now().In(s.store.Location()))
	if !adapter.IntraDay() {
		day = day.AddDate(0, 0, -1)
	}
	return s.RunDate(ctx, title, day)
}

// RunDate ingests the campaign for the platform calendar day containing
// date. Re-running a day converges to the same state.
func (s *Service) RunDate(ctx context.Context, title string, date time.Time) (*Summary, error) {
	start := time.Now()
	day := midnight(date.In(s.store.Location()))
	sum := &Summary{RunID: uuid.NewString(), Campaign: title, Date: day.Format("2006-01-02")}
	batch := alerting.NewBatch(fmt.Sprintf("ingestion %s %s", title, sum.Date))
	defer func() {
		metrics.IngestDuration.WithLabelValues(title).Observe(time.Since(start).Seconds())
	}()

	log := s.log.With("run", sum.RunID, "campaign", title, "date", sum.Date)
	log.Info("ingestion started")
	s.send(ctx, alerting.Info, fmt.Sprintf("ingestion started: %s for %s (run %s)", title, sum.Date, sum.RunID))

	adapter, err := s.registry.Get(title)
	if err != nil {
		return s.fail(ctx, sum, batch, err)
	}
	campaign, err := s.store.GetCampaignByTitle(ctx, title)
	if err != nil {
		return s.fail(ctx, sum, batch, err)
	}

	// Resolve FX before calling the bookmaker so a missing snapshot costs
	// nothing upstream.
	snap, err := fx.LatestAt(ctx, s.store, day)
	if err != nil {
		return s.fail(ctx, sum, batch, err)
	}

	raw, warnings, err := adapter.Fetch(ctx, day)
	for _, w := range warnings {
		batch.Warn("%s", w)
	}
	if err != nil {
		return s.fail(ctx, sum, batch, err)
	}
	sum.Fetched = len(raw)

	rows, warnings, err := s.normalizer.Normalize(adapter, raw, campaign.CurrencyCondition)
	for _, w := range warnings {
		batch.Warn("%s", w)
	}
	if err != nil {
		return s.fail(ctx, sum, batch, err)
	}
	sum.Rows = len(rows)
	metrics.IngestRows.WithLabelValues(title).Add(float64(len(rows)))

	res, err := s.reconciler.Reconcile(ctx, reconcile.Input{
		Campaign: campaign,
		Date:     day,
		Fx:       snap,
		Rows:     rows,
		Policy: reconcile.Policy{
			RevenueThreshold: adapter.RevenueThreshold(),
			RevenueShareOnly: adapter.RevenueShareOnly(),
			MinCPATrackerDay: s.minCPA,
		},
	})
	if res != nil {
		for _, w := range res.Warnings {
			batch.Warn("%s", w)
		}
	}
	if err != nil {
		return s.fail(ctx, sum, batch, err)
	}
	sum.Result = res
	sum.Warnings = batch.Warnings()

	metrics.IngestRuns.WithLabelValues(title, "ok").Inc()
	metrics.IngestWarnings.WithLabelValues(title).Add(float64(batch.Len()))
	batch.Flush(ctx, s.sink)

	log.Info("ingestion finished",
		"rows", sum.Rows,
		"links", res.Links,
		"accounts", res.Accounts,
		"cpa_house", res.CPAHouse,
		"cpa_partner", res.CPAPartner,
		"warnings", batch.Len(),
	)
	s.send(ctx, alerting.Info, fmt.Sprintf(
		"ingestion finished: %s for %s: %d rows, %d links, cpa house %d, cpa partner %d, %d warning(s)",
		title, sum.Date, sum.Rows, res.Links, res.CPAHouse, res.CPAPartner, batch.Len()))
	return sum, nil
}

// fail reports a job-level error. Nothing has been written at this point:
// the reconciler either committed everything or rolled back.
func (s *Service) fail(ctx context.Context, sum *Summary, batch *alerting.Batch, err error) (*Summary, error) {
	kind := domain.Classify(err)
	metrics.IngestRuns.WithLabelValues(sum.Campaign, "failed").Inc()
	metrics.JobErrors.WithLabelValues("ingestion", string(kind)).Inc()
	s.log.Error("ingestion failed", "run", sum.RunID, "campaign", sum.Campaign, "date", sum.Date,
		"kind", kind, "error", err)

	if batch != nil {
		sum.Warnings = batch.Warnings()
		metrics.IngestWarnings.WithLabelValues(sum.Campaign).Add(float64(batch.Len()))
		batch.Flush(ctx, s.sink)
	}
	s.send(ctx, alerting.Error, fmt.Sprintf("ingestion failed: %s for %s [%s]: %v", sum.Campaign, sum.Date, kind, err))
	return sum, fmt.Errorf("ingest %s: %w", sum.Campaign, err)
}

func (s *Service) send(ctx context.Context, sev alerting.Severity, msg string) {
	if s.sink != nil {
		s.sink.Send(ctx, sev, msg, "")
	}
}

// RunAll runs the default day of every title on at most workers goroutines.
// The returned map holds the error of every failed campaign.
func (s *Service) RunAll(ctx context.Context, titles []string, workers int) map[string]error {
	if workers < 1 {
		workers = 1
	}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = map[string]error{}
		sem  = make(chan struct{}, workers)
	)
	for _, title := range titles {
		wg.Add(1)
		go func(title string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				errs[title] = ctx.Err()
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			if _, err := s.Run(ctx, title); err != nil {
				mu.Lock()
				errs[title] = err
				mu.Unlock()
			}
		}(title)
	}
	wg.Wait()
	return errs
}

// IsConfigError reports whether err is a missing campaign or adapter, which
// callers surface as a client error rather than a job failure.
func IsConfigError(err error) bool {
	return errors.Is(err, domain.ErrCampaignNotFound) || errors.Is(err, domain.ErrAdapterNotFound)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
