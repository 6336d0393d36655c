package fx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/metrics"
	"github.com/betenlace/affiliates/internal/repository"
)

// Pivots are the base currencies fetched from the provider each day. Rows of
// the matrix for other currencies are filled with reciprocals.
var Pivots = []currency.Code{
	currency.EUR, currency.USD, currency.MXN, currency.BRL,
	currency.GBP, currency.PEN, currency.CLP,
}

// Updater writes at most one snapshot per platform calendar day.
type Updater struct {
	provider     Provider
	store        *repository.Store
	fxPercentage float64
	loc          *time.Location
	log          *slog.Logger
}

func NewUpdater(p Provider, store *repository.Store, fxPercentage float64) *Updater {
	return &Updater{
		provider:     p,
		store:        store,
		fxPercentage: fxPercentage,
		loc:          store.Location(),
		log:          slog.With("component", "fx"),
	}
}

// Run fetches every pivot for the day of at and stores the snapshot. It
// returns the existing snapshot id when the day already has one. A provider
// failure on any pivot aborts before anything is written.
func (u *Updater) Run(ctx context.Context, at time.Time) (*domain.FxSnapshot, error) {
	local := at.In(u.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, u.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	exists, err := u.store.FxSnapshotExists(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if exists {
		u.log.Info("fx snapshot already present", "date", dayStart.Format("2006-01-02"))
		metrics.FxSnapshots.WithLabelValues("skipped").Inc()
		return u.store.FirstFxSnapshotFrom(ctx, dayStart)
	}

	var m domain.RateMatrix
	for _, base := range Pivots {
		rates, err := u.provider.Rates(ctx, base, dayStart)
		if err != nil {
			metrics.FxSnapshots.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("fetch %s rates: %w", base, err)
		}
		for to, r := range rates {
			if to != base {
				m[base][to] = r
			}
		}
	}
	FillReciprocals(&m)

	snap := &domain.FxSnapshot{CreatedAt: at, FxPercentage: u.fxPercentage, Rates: m}
	if err := u.store.InsertFxSnapshot(ctx, snap); err != nil {
		metrics.FxSnapshots.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.FxSnapshots.WithLabelValues("written").Inc()
	u.log.Info("fx snapshot written", "id", snap.ID, "date", dayStart.Format("2006-01-02"))
	return snap, nil
}

// FillReciprocals sets every unknown off-diagonal cell (a,b) to 1/(b,a)
// when the inverse cell is known.
func FillReciprocals(m *domain.RateMatrix) {
	for _, from := range currency.All() {
		for _, to := range currency.All() {
			if from == to || m[from][to] != 0 {
				continue
			}
			if inv := m[to][from]; inv != 0 {
				m[from][to] = 1 / inv
			}
		}
	}
}
