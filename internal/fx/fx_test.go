package fx_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/fx"
	"github.com/betenlace/affiliates/internal/testutil"
)

// providerServer quotes testutil.USDPrices for every pivot. A base listed in
// failFor answers 503.
func providerServer(t *testing.T, failFor string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		base := r.URL.Query().Get("base")
		if r.URL.Query().Get("api_key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if base == failFor {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		b := currency.MustParse(base)
		var parts []string
		for c, p := range testutil.USDPrices {
			// COP is never a base, so its row must come from reciprocals.
			if c == b {
				continue
			}
			parts = append(parts, fmt.Sprintf("%q:%v", c.String(), p/testutil.USDPrices[b]))
		}
		fmt.Fprintf(w, `{"results":{%s}}`, strings.Join(parts, ","))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLatestAt(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)

	if _, err := fx.LatestAt(ctx, s, testutil.Day(2024, 3, 5)); !errors.Is(err, domain.ErrNoFxAvailable) {
		t.Fatalf("expected ErrNoFxAvailable, got %v", err)
	}

	early := testutil.FxSnapshot(t, s, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), 0.95)
	late := testutil.FxSnapshot(t, s, time.Date(2024, 3, 6, 5, 0, 0, 0, time.UTC), 0.95)

	got, err := fx.LatestAt(ctx, s, testutil.Day(2024, 3, 5))
	if err != nil || got.ID != late.ID {
		t.Fatalf("expected the first snapshot after t, got %+v, %v", got, err)
	}
	got, err = fx.LatestAt(ctx, s, testutil.Day(2024, 3, 10))
	if err != nil || got.ID != late.ID {
		t.Fatalf("expected the most recent snapshot before t, got %+v, %v", got, err)
	}
	got, err = fx.LatestAt(ctx, s, testutil.Day(2024, 2, 20))
	if err != nil || got.ID != early.ID {
		t.Fatalf("expected the earliest snapshot, got %+v, %v", got, err)
	}
}

func TestUpdaterWritesFullMatrix(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	srv, calls := providerServer(t, "")

	u := fx.NewUpdater(fx.NewHTTPProvider(srv.URL, "k", 5*time.Second), s, 0.95)
	at := time.Date(2024, 3, 5, 0, 30, 0, 0, time.UTC)
	snap, err := u.Run(ctx, at)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if int(atomic.LoadInt32(calls)) != len(fx.Pivots) {
		t.Fatalf("expected one call per pivot, got %d", *calls)
	}

	stored, err := fx.LatestAt(ctx, s, testutil.Day(2024, 3, 5))
	if err != nil || stored.ID != snap.ID {
		t.Fatalf("stored snapshot: %+v, %v", stored, err)
	}
	if stored.FxPercentage != 0.95 {
		t.Fatalf("fx percentage: %v", stored.FxPercentage)
	}
	for _, a := range currency.All() {
		for _, b := range currency.All() {
			ab, err := stored.Rate(a, b)
			if err != nil {
				t.Fatalf("rate %s->%s: %v", a, b, err)
			}
			ba, _ := stored.Rate(b, a)
			if math.Abs(ab*ba-1) > 1e-4 {
				t.Fatalf("round trip %s/%s = %v", a, b, ab*ba)
			}
		}
	}
	if r, _ := stored.Rate(currency.COP, currency.USD); math.Abs(r-1.0/4000) > 1e-12 {
		t.Fatalf("COP row should be the reciprocal of USD->COP, got %v", r)
	}

	// Second run the same day is a no-op.
	again, err := u.Run(ctx, at.Add(6*time.Hour))
	if err != nil || again.ID != snap.ID {
		t.Fatalf("second run: %+v, %v", again, err)
	}
	if int(atomic.LoadInt32(calls)) != len(fx.Pivots) {
		t.Fatalf("second run must not call the provider")
	}
}

func TestUpdaterWritesNothingOnPivotFailure(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	srv, _ := providerServer(t, "GBP")

	u := fx.NewUpdater(fx.NewHTTPProvider(srv.URL, "k", 5*time.Second), s, 0.95)
	_, err := u.Run(ctx, time.Date(2024, 3, 5, 0, 30, 0, 0, time.UTC))
	var up *domain.UpstreamError
	if !errors.As(err, &up) || up.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if _, err := fx.LatestAt(ctx, s, testutil.Day(2024, 3, 5)); !errors.Is(err, domain.ErrNoFxAvailable) {
		t.Fatalf("partial snapshot written: %v", err)
	}
}

func TestFillReciprocals(t *testing.T) {
	var m domain.RateMatrix
	m[currency.USD][currency.COP] = 4000
	fx.FillReciprocals(&m)
	if m[currency.COP][currency.USD] != 1.0/4000 {
		t.Fatalf("reciprocal: %v", m[currency.COP][currency.USD])
	}
	if m[currency.COP][currency.EUR] != 0 {
		t.Fatalf("unknown pair must stay unknown")
	}
}
