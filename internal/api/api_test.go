package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/api"
	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/ingestion"
	"github.com/betenlace/affiliates/internal/repository"
	"github.com/betenlace/affiliates/internal/settlement"
	"github.com/betenlace/affiliates/internal/testutil"
)

type fakeIngester struct {
	err   error
	dates []time.Time
	runs  []string
}

func (f *fakeIngester) Titles() []string { return []string{"betplay_co", "codere_mx"} }

func (f *fakeIngester) Run(_ context.Context, title string) (*ingestion.Summary, error) {
	f.runs = append(f.runs, title)
	return &ingestion.Summary{Campaign: title}, f.err
}

func (f *fakeIngester) RunDate(_ context.Context, title string, date time.Time) (*ingestion.Summary, error) {
	f.runs = append(f.runs, title)
	f.dates = append(f.dates, date)
	return &ingestion.Summary{Campaign: title, Date: date.Format("2006-01-02")}, f.err
}

func (f *fakeIngester) RunAll(_ context.Context, titles []string, _ int) map[string]error {
	return map[string]error{titles[1]: fmt.Errorf("ingest: %w", domain.ErrNoFxAvailable)}
}

type fakeSettler struct {
	err    error
	months []time.Time
}

func (f *fakeSettler) Run(ctx context.Context) (*settlement.Result, error) {
	return f.RunMonth(ctx, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
}

func (f *fakeSettler) RunMonth(_ context.Context, month time.Time) (*settlement.Result, error) {
	f.months = append(f.months, month)
	return &settlement.Result{Month: month.Format("2006-01")}, f.err
}

func newServer(t *testing.T, d api.Deps) (*httptest.Server, *repository.Store) {
	t.Helper()
	if d.Store == nil {
		d.Store = testutil.NewStore(t)
	}
	srv := httptest.NewServer(api.NewRouter(d))
	t.Cleanup(srv.Close)
	return srv, d.Store
}

func do(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newServer(t, api.Deps{})

	if code, body := do(t, http.MethodGet, srv.URL+"/healthz"); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", code, body)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "service_http_request_count_total") {
		t.Fatal("request counter missing from /metrics")
	}
}

func TestIngestWithDate(t *testing.T) {
	ing := &fakeIngester{}
	srv, _ := newServer(t, api.Deps{Ingestion: ing})

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/ingest/betplay_co?date=2024-03-05")
	if code != http.StatusOK || body["date"] != "2024-03-05" {
		t.Fatalf("ingest: %d %v", code, body)
	}
	if len(ing.dates) != 1 || !ing.dates[0].Equal(testutil.Day(2024, 3, 5)) {
		t.Fatalf("dates: %v", ing.dates)
	}

	if code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/ingest/betplay_co?date=05-03-2024"); code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", code)
	}
}

func TestIngestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("ingest x: %w", domain.ErrCampaignNotFound), http.StatusNotFound},
		{fmt.Errorf("ingest x: %w", domain.ErrNoFxAvailable), http.StatusUnprocessableEntity},
		{&domain.UpstreamError{Source: "betplay", Status: 502, Err: io.EOF}, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv, _ := newServer(t, api.Deps{Ingestion: &fakeIngester{err: tc.err}})
		code, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/ingest/betplay_co")
		if code != tc.want {
			t.Errorf("%v: got %d, want %d", tc.err, code, tc.want)
		}
		if body["result"] == nil {
			t.Errorf("%v: summary dropped from error body", tc.err)
		}
	}
}

func TestIngestAllReportsFailures(t *testing.T) {
	srv, _ := newServer(t, api.Deps{Ingestion: &fakeIngester{}, Workers: 2})

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/ingest")
	if code != http.StatusMultiStatus {
		t.Fatalf("status: %d", code)
	}
	failed, _ := body["failed"].(map[string]any)
	if _, ok := failed["codere_mx"]; !ok || len(failed) != 1 {
		t.Fatalf("failed: %v", body)
	}
}

func TestSettleMonth(t *testing.T) {
	set := &fakeSettler{}
	srv, _ := newServer(t, api.Deps{Settlement: set})

	code, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/settlement?month=2024-03")
	if code != http.StatusOK || body["month"] != "2024-03" {
		t.Fatalf("settle: %d %v", code, body)
	}
	if code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/settlement?month=march"); code != http.StatusBadRequest {
		t.Fatalf("bad month: %d", code)
	}

	set.err = fmt.Errorf("settle: %w", domain.ErrLockHeld)
	if code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/jobs/settlement"); code != http.StatusConflict {
		t.Fatalf("lock held: %d", code)
	}
}

func TestUnconfiguredJobsAreUnavailable(t *testing.T) {
	srv, _ := newServer(t, api.Deps{})
	for _, path := range []string{"/jobs/ingest/x", "/jobs/settlement", "/jobs/fx", "/jobs/clicks"} {
		if code, _ := do(t, http.MethodPost, srv.URL+"/api/v1"+path); code != http.StatusServiceUnavailable {
			t.Errorf("%s: %d", path, code)
		}
	}
}

func TestReadEndpoints(t *testing.T) {
	srv, s := newServer(t, api.Deps{})
	ctx := context.Background()
	c := testutil.Campaign(t, s, "betplay_co")
	l := testutil.Link(t, s, c.ID, "P1")
	for _, day := range []int{4, 5} {
		d := &domain.BetenlaceDailyReport{
			LinkID:              l.ID,
			Date:                testutil.Day(2024, 3, day),
			CurrencyCondition:   currency.USD,
			CurrencyFixedIncome: currency.USD,
		}
		d.CPACount = day
		if err := s.UpsertDaily(ctx, d); err != nil {
			t.Fatalf("upsert daily: %v", err)
		}
	}

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/links/"+l.ID+"/daily?from=2024-03-05&to=2024-03-31")
	daily, _ := body["daily"].([]any)
	if code != http.StatusOK || len(daily) != 1 {
		t.Fatalf("daily: %d %v", code, body)
	}

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/partners/nobody/bills")
	bills, ok := body["bills"].([]any)
	if code != http.StatusOK || !ok || len(bills) != 0 {
		t.Fatalf("bills: %d %v", code, body)
	}

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/campaigns")
	campaigns, _ := body["campaigns"].([]any)
	if code != http.StatusOK || len(campaigns) != 1 {
		t.Fatalf("campaigns: %d %v", code, body)
	}
}
