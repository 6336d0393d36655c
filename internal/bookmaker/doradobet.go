package bookmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/betenlace/affiliates/internal/config"
	"github.com/betenlace/affiliates/internal/domain"
)

// doradobet answers a JSON POST carrying the API key in the body. limit -1
// asks for every row in one page.
//
//	{"status": "ok", "rows": [{"fecha": "2024-03-05", "codigo": "P1", "usuario": "u1",
//	  "depositos": 20, "apuestas": 80, "ggr": 15, "comision": 40,
//	  "fecha_registro": "2024-03-01", "fecha_ftd": "2024-03-02"}]}
//
// A day without activity answers {"message": "No data"}.
type doradobet struct {
	base
}

var doradobetColumns = columnMap{
	"fecha":          ColDate,
	"codigo":         ColPromCode,
	"usuario":        ColPunterID,
	"depositos":      ColDeposit,
	"apuestas":       ColStake,
	"ggr":            ColNetRevenue,
	"comision":       ColRevenueShare,
	"fecha_registro": ColRegisteredAt,
	"fecha_ftd":      ColFirstDepositAt,
}

type doradobetRequest struct {
	APIKey   string `json:"api_key"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	Limit    int    `json:"limit"`
}

func newDoradobet(cfg config.CampaignConfig, opts []ClientOption) (Adapter, error) {
	b, err := newBase("doradobet", cfg, opts, "api_key")
	if err != nil {
		return nil, err
	}
	return &doradobet{base: b}, nil
}

func (a *doradobet) RevenueThreshold() float64 { return a.cfg.CPAConditionFromRS }
func (a *doradobet) ExposesPunters() bool      { return true }
func (a *doradobet) ExposesMembers() bool      { return false }

func (a *doradobet) Fetch(ctx context.Context, date time.Time) ([]RawRow, []string, error) {
	day := date.Format("2006-01-02")
	payload, err := json.Marshal(doradobetRequest{
		APIKey:   a.cfg.Credential("api_key"),
		DateFrom: day,
		DateTo:   day,
		Limit:    -1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("doradobet: encode request: %w", err)
	}

	body, err := a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url("/api/report"), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if IsNoData(body) {
		return nil, noDataWarning(a.name, date), nil
	}

	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, &domain.UpstreamError{Source: a.name, Err: fmt.Errorf("decode: %w", err)}
	}
	if envelope.Status != "" && !strings.EqualFold(envelope.Status, "ok") {
		return nil, nil, &domain.UpstreamError{Source: a.name, Err: fmt.Errorf("status %q: %s", envelope.Status, envelope.Message)}
	}

	rows, err := decodeJSONRecords(a.name, body, "rows", doradobetColumns,
		[]string{ColPromCode, ColPunterID, ColDeposit, ColStake, ColNetRevenue, ColRevenueShare})
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := a.finish(rows, date)
	return rows, warnings, nil
}
