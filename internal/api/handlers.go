// Package api exposes the job triggers and the operator read endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/betenlace/affiliates/internal/clicks"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/ingestion"
	"github.com/betenlace/affiliates/internal/repository"
	"github.com/betenlace/affiliates/internal/settlement"
)

type Ingester interface {
	Titles() []string
	Run(ctx context.Context, title string) (*ingestion.Summary, error)
	RunDate(ctx context.Context, title string, date time.Time) (*ingestion.Summary, error)
	RunAll(ctx context.Context, titles []string, workers int) map[string]error
}

type Settler interface {
	Run(ctx context.Context) (*settlement.Result, error)
	RunMonth(ctx context.Context, month time.Time) (*settlement.Result, error)
}

type FxUpdater interface {
	Run(ctx context.Context, at time.Time) (*domain.FxSnapshot, error)
}

type ClickBackfiller interface {
	Run(ctx context.Context) (*clicks.Result, error)
}

// Deps are the services behind the routes. A nil job service answers 503.
type Deps struct {
	Store      *repository.Store
	Ingestion  Ingester
	Settlement Settler
	Fx         FxUpdater
	Clicks     ClickBackfiller
	Workers    int
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	Deps
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "component", "api", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJobError maps the error taxonomy to a status code. body, when not
// nil, is returned next to the error so partial results stay visible.
func writeJobError(w http.ResponseWriter, err error, body any) {
	status := http.StatusInternalServerError
	kind := domain.Classify(err)
	switch {
	case ingestion.IsConfigError(err):
		status = http.StatusNotFound
	case kind == domain.KindConfigMissing:
		status = http.StatusUnprocessableEntity
	case kind == domain.KindUpstreamUnavailable, kind == domain.KindSchemaMismatch:
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrLockHeld):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"kind":   kind,
		"result": body,
	})
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	return t, err == nil
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Ingest ---

// Ingest runs one campaign. ?date=YYYY-MM-DD re-runs a specific day.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.Ingestion == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}
	title := chi.URLParam(r, "title")

	var (
		sum *ingestion.Summary
		err error
	)
	if d := r.URL.Query().Get("date"); d != "" {
		date, ok := parseDate(d, h.Store.Location())
		if !ok {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		sum, err = h.Ingestion.RunDate(r.Context(), title, date)
	} else {
		sum, err = h.Ingestion.Run(r.Context(), title)
	}
	if err != nil {
		writeJobError(w, err, sum)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// IngestAll runs every registered campaign on the worker pool.
func (h *Handlers) IngestAll(w http.ResponseWriter, r *http.Request) {
	if h.Ingestion == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}
	titles := h.Ingestion.Titles()
	errs := h.Ingestion.RunAll(r.Context(), titles, h.Workers)

	failed := make(map[string]string, len(errs))
	for title, err := range errs {
		failed[title] = err.Error()
	}
	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{
		"campaigns": len(titles),
		"failed":    failed,
	})
}

// --- Settle ---

// Settle closes the previous month, or ?month=YYYY-MM.
func (h *Handlers) Settle(w http.ResponseWriter, r *http.Request) {
	if h.Settlement == nil {
		writeError(w, http.StatusServiceUnavailable, "settlement is not configured")
		return
	}

	var (
		res *settlement.Result
		err error
	)
	if m := r.URL.Query().Get("month"); m != "" {
		month, perr := time.ParseInLocation("2006-01", m, h.Store.Location())
		if perr != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		res, err = h.Settlement.RunMonth(r.Context(), month)
	} else {
		res, err = h.Settlement.Run(r.Context())
	}
	if err != nil {
		writeJobError(w, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- UpdateFx ---

func (h *Handlers) UpdateFx(w http.ResponseWriter, r *http.Request) {
	if h.Fx == nil {
		writeError(w, http.StatusServiceUnavailable, "fx provider is not configured")
		return
	}
	snap, err := h.Fx.Run(r.Context(), time.Now())
	if err != nil {
		writeJobError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            snap.ID,
		"created_at":    snap.CreatedAt,
		"fx_percentage": snap.FxPercentage,
	})
}

// --- BackfillClicks ---

func (h *Handlers) BackfillClicks(w http.ResponseWriter, r *http.Request) {
	if h.Clicks == nil {
		writeError(w, http.StatusServiceUnavailable, "click backfill is not configured")
		return
	}
	res, err := h.Clicks.Run(r.Context())
	if err != nil {
		writeJobError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- ListCampaigns ---

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Store.ListCampaigns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var registered []string
	if h.Ingestion != nil {
		registered = h.Ingestion.Titles()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns":  campaigns,
		"registered": registered,
	})
}

// --- ListLinkDaily ---

// ListLinkDaily returns a link's house daily rows in [from, to]; both
// default to the current month.
func (h *Handlers) ListLinkDaily(w http.ResponseWriter, r *http.Request) {
	loc := h.Store.Location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, -1)

	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		var ok bool
		if from, ok = parseDate(s, loc); !ok {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
	}
	if s := q.Get("to"); s != "" {
		var ok bool
		if to, ok = parseDate(s, loc); !ok {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}

	rows, err := h.Store.ListDailyByLink(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []domain.BetenlaceDailyReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":  from.Format("2006-01-02"),
		"to":    to.Format("2006-01-02"),
		"daily": rows,
	})
}

// --- ListPartnerBills ---

func (h *Handlers) ListPartnerBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.Store.ListBills(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if bills == nil {
		bills = []domain.WithdrawalBill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bills": bills,
		"total": len(bills),
	})
}
