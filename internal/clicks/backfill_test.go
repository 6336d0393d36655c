package clicks_test

import (
	"context"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/clicks"
	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/testutil"
)

func TestBackfillSumsEventsPerLinkAndDay(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	c := testutil.Campaign(t, s, "betplay_co")
	a := testutil.Link(t, s, c.ID, "A")
	b := testutil.Link(t, s, c.ID, "B")

	day := testutil.Day(2024, 3, 5)
	seed := func(linkID string, date time.Time, clicks *int) {
		d := &domain.BetenlaceDailyReport{
			LinkID:              linkID,
			Date:                date,
			CurrencyCondition:   currency.USD,
			CurrencyFixedIncome: currency.USD,
			ClickCount:          clicks,
		}
		if err := s.UpsertDaily(ctx, d); err != nil {
			t.Fatalf("upsert daily: %v", err)
		}
	}
	seed(a.ID, day, nil)
	seed(a.ID, day.AddDate(0, 0, 1), nil)
	seed(b.ID, day, nil)
	seed(b.ID, day.AddDate(0, 0, -1), testutil.Ptr(9))

	events := []domain.ClickEvent{
		{LinkID: a.ID, CreatedAt: day.Add(time.Hour), Count: 2},
		{LinkID: a.ID, CreatedAt: day.Add(23 * time.Hour), Count: 3},
		{LinkID: a.ID, CreatedAt: day.AddDate(0, 0, 1).Add(time.Minute)},
		// Already counted day; must not be touched.
		{LinkID: b.ID, CreatedAt: day.AddDate(0, 0, -1).Add(time.Hour), Count: 4},
	}
	if _, err := s.InsertClickEvents(ctx, events); err != nil {
		t.Fatalf("insert events: %v", err)
	}

	res, err := clicks.NewBackfill(s).Run(ctx)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Rows != 3 || res.Clicks != 6 {
		t.Fatalf("result: %+v", res)
	}

	want := map[string]map[string]int{
		a.ID: {"2024-03-05": 5, "2024-03-06": 1},
		b.ID: {"2024-03-04": 9, "2024-03-05": 0},
	}
	for linkID, days := range want {
		rows, err := s.ListDailyByLink(ctx, linkID, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("list daily: %v", err)
		}
		if len(rows) != len(days) {
			t.Fatalf("link %s: %d rows", linkID, len(rows))
		}
		for _, r := range rows {
			d := r.Date.Format("2006-01-02")
			if r.ClickCount == nil || *r.ClickCount != days[d] {
				t.Fatalf("link %s on %s: clicks %v, want %d", linkID, d, r.ClickCount, days[d])
			}
		}
	}

	again, err := clicks.NewBackfill(s).Run(ctx)
	if err != nil || again.Rows != 0 {
		t.Fatalf("second run should find nothing: %+v %v", again, err)
	}
}
