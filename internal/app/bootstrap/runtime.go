// Package bootstrap wires configuration, storage and the job services into
// a runtime shared by the server and the one-shot CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betenlace/affiliates/internal/alerting"
	"github.com/betenlace/affiliates/internal/api"
	"github.com/betenlace/affiliates/internal/bookmaker"
	"github.com/betenlace/affiliates/internal/clicks"
	"github.com/betenlace/affiliates/internal/config"
	"github.com/betenlace/affiliates/internal/fx"
	"github.com/betenlace/affiliates/internal/ingestion"
	"github.com/betenlace/affiliates/internal/repository"
	"github.com/betenlace/affiliates/internal/scheduler"
	"github.com/betenlace/affiliates/internal/settlement"
)

type Runtime struct {
	Config    *config.Config
	Campaigns []config.CampaignConfig
	Store     *repository.Store

	Ingestion  *ingestion.Service
	Settlement *settlement.Service
	Fx         *fx.Updater // nil without a provider URL
	Clicks     *clicks.Backfill

	db     *sql.DB
	logger *slog.Logger
}

// NewRuntime loads the configuration, opens the database (seeding it when
// empty) and builds every job service.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", "affiliates")
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	campaigns, err := config.LoadCampaigns(cfg.Ingestion.CampaignsFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("campaigns file not found, no adapters registered", "path", cfg.Ingestion.CampaignsFile)
		campaigns, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	registry, err := bookmaker.NewRegistry(campaigns)
	if err != nil {
		return nil, fmt.Errorf("build adapter registry: %w", err)
	}

	logger.Info("initializing database", "path", cfg.Database.Path)
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	store := repository.NewStore(db, cfg.Platform.Location)
	if err := seedIfEmpty(ctx, store, cfg.Database.SeedFile, logger); err != nil {
		logger.Warn("seeding failed", "error", err)
	}

	var sink alerting.Sink = alerting.LogSink{}
	if len(cfg.Alerting.Webhooks) > 0 {
		sink = alerting.NewChatSink(cfg.Alerting.Webhooks)
	}

	rt := &Runtime{
		Config:     cfg,
		Campaigns:  campaigns,
		Store:      store,
		Ingestion:  ingestion.NewService(store, registry, sink, cfg.Ingestion.MinCPATrackerDay),
		Settlement: settlement.NewService(store, sink, cfg.Settlement),
		Clicks:     clicks.NewBackfill(store),
		db:         db,
		logger:     logger,
	}
	if cfg.FX.ProviderURL != "" {
		provider := fx.NewHTTPProvider(cfg.FX.ProviderURL, cfg.FX.ProviderKey, cfg.FX.Timeout)
		rt.Fx = fx.NewUpdater(provider, store, cfg.FX.Percentage)
	} else {
		logger.Warn("FX_PROVIDER_URL not set, fx updater disabled")
	}
	return rt, nil
}

func seedIfEmpty(ctx context.Context, store *repository.Store, path string, logger *slog.Logger) error {
	count, err := store.CountCampaigns(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("database already seeded", "campaigns", count)
		return nil
	}
	seed, err := repository.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := store.ApplySeed(ctx, seed); err != nil {
		return err
	}
	logger.Info("database seeded", "path", path, "campaigns", len(seed.Campaigns), "partners", len(seed.Partners))
	return nil
}

// Deps returns the API dependencies. Disabled services stay nil interfaces.
func (rt *Runtime) Deps() api.Deps {
	d := api.Deps{
		Store:      rt.Store,
		Ingestion:  rt.Ingestion,
		Settlement: rt.Settlement,
		Clicks:     rt.Clicks,
		Workers:    rt.Config.Ingestion.Workers,
	}
	if rt.Fx != nil {
		d.Fx = rt.Fx
	}
	return d
}

// Scheduler registers every periodic job on the configured specs.
func (rt *Runtime) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(rt.Config.Platform.Location)
	err := s.AddCampaigns(rt.Campaigns, func(ctx context.Context, title string) error {
		_, err := rt.Ingestion.Run(ctx, title)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rt.Fx != nil {
		err := s.Add("fx", rt.Config.Ingestion.FxSchedule, func(ctx context.Context) error {
			_, err := rt.Fx.Run(ctx, time.Now())
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if err := s.Add("settlement", rt.Config.Ingestion.SettlementSchedule, func(ctx context.Context) error {
		_, err := rt.Settlement.Run(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.Add("clicks", rt.Config.Ingestion.ClicksSchedule, func(ctx context.Context) error {
		_, err := rt.Clicks.Run(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// RunAPI serves the HTTP API, and the scheduler when enabled, until SIGINT
// or SIGTERM.
func (rt *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if rt.Config.Ingestion.SchedulerEnabled {
		var err error
		if sched, err = rt.Scheduler(); err != nil {
			return err
		}
		sched.Start(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + rt.Config.Server.Port,
		Handler:           api.NewRouter(rt.Deps()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", "addr", srv.Addr, "campaigns", len(rt.Campaigns), "scheduler", sched != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	rt.logger.Info("server stopped")
	return nil
}

func (rt *Runtime) Close() error {
	return rt.db.Close()
}
