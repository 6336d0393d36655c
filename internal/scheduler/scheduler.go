// Package scheduler triggers the periodic jobs (per-campaign ingestion, FX
// update, month-close settlement and click backfill) on cron specs with a
// seconds field.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/betenlace/affiliates/internal/config"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	names map[cron.EntryID]string
}

// New creates a scheduler evaluating specs in loc. Overlapping runs of the
// same job are skipped and panics are recovered.
func New(loc *time.Location) *Scheduler {
	log := slog.With("component", "scheduler")
	logger := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		log:   log,
		ctx:   context.Background(),
		names: map[cron.EntryID]string{},
	}
}

// Add registers fn under name. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.log.Info("job disabled", "job", name)
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()
	s.log.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// AddCampaigns registers one ingestion job per campaign on its own schedule.
func (s *Scheduler) AddCampaigns(cfgs []config.CampaignConfig, ingest func(ctx context.Context, title string) error) error {
	for _, c := range cfgs {
		title := c.Title
		err := s.Add("ingest:"+title, c.Schedule, func(ctx context.Context) error {
			return ingest(ctx, title)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("job started", "job", name)
	if err := fn(ctx); err != nil {
		s.log.Error("job failed", "job", name, "error", err, "elapsed", time.Since(start))
		return
	}
	s.log.Info("job finished", "job", name, "elapsed", time.Since(start))
}

// Jobs lists the registered job names with their next activation.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.names))
	for _, e := range s.cron.Entries() {
		out[s.names[e.ID]] = e.Next
	}
	return out
}

// Start runs the scheduler in the background. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops new activations and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
}

type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
