// Package clicks fills the click_count of house daily rows from raw
// click-tracking events.
package clicks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/metrics"
	"github.com/betenlace/affiliates/internal/repository"
)

type Result struct {
	Rows   int `json:"rows"`
	Clicks int `json:"clicks"`
}

type Backfill struct {
	store *repository.Store
	log   *slog.Logger
}

func NewBackfill(store *repository.Store) *Backfill {
	return &Backfill{store: store, log: slog.With("component", "clicks")}
}

// Run sets click_count on every daily row that has none. Days without
// events get 0.
func (b *Backfill) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	err := b.store.WithTx(ctx, func(q *repository.Queries) error {
		*res = Result{}
		missing, err := q.ListDailyMissingClicks(ctx)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}

		from, to := missing[0].Date, missing[0].Date
		seen := map[string]bool{}
		var linkIDs []string
		for _, d := range missing {
			if d.Date.Before(from) {
				from = d.Date
			}
			if d.Date.After(to) {
				to = d.Date
			}
			if !seen[d.LinkID] {
				seen[d.LinkID] = true
				linkIDs = append(linkIDs, d.LinkID)
			}
		}

		events, err := q.ListClickEvents(ctx, linkIDs, from, to.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		counts := group(events, q.Location())

		for _, d := range missing {
			n := counts[key(d.LinkID, d.Date)]
			if err := q.SetClickCount(ctx, d.ID, n); err != nil {
				return fmt.Errorf("set clicks on %s: %w", d.ID, err)
			}
			res.Rows++
			res.Clicks += n
		}
		return nil
	})
	if err != nil {
		metrics.JobErrors.WithLabelValues("clicks", string(domain.Classify(err))).Inc()
		return nil, fmt.Errorf("click backfill: %w", err)
	}
	metrics.ClickRows.Add(float64(res.Rows))
	b.log.Info("click backfill finished", "rows", res.Rows, "clicks", res.Clicks)
	return res, nil
}

// group sums event counts per (link, platform day).
func group(events []domain.ClickEvent, loc *time.Location) map[string]int {
	out := map[string]int{}
	for _, e := range events {
		out[key(e.LinkID, e.CreatedAt.In(loc))] += e.Count
	}
	return out
}

func key(linkID string, t time.Time) string {
	return linkID + "|" + t.Format("2006-01-02")
}
