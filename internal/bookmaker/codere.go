package bookmaker

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/betenlace/affiliates/internal/config"
)

// codere serves per tracking code aggregates as JSON. Requests carry the
// paired X-Access-Key / X-Secret-Key headers.
//
//	{"data": [{"date": "2024-03-05", "tracking_code": "P1", "deposits": 120.5,
//	  "turnover": 900, "net_revenue": -40, "revenue_share": 12, "registrations": 3,
//	  "ftd": 1, "cpa": 1, "active_players": 4}]}
type codere struct {
	base
}

var codereColumns = columnMap{
	"date":           ColDate,
	"tracking_code":  ColPromCode,
	"deposits":       ColDeposit,
	"turnover":       ColStake,
	"net_revenue":    ColNetRevenue,
	"revenue_share":  ColRevenueShare,
	"registrations":  ColRegisteredCount,
	"ftd":            ColFirstDepositCount,
	"cpa":            ColCPACount,
	"active_players": ColWageringCount,
	"currency":       ColCurrency,
}

func newCodere(cfg config.CampaignConfig, opts []ClientOption) (Adapter, error) {
	b, err := newBase("codere", cfg, opts, "access_key", "secret_key")
	if err != nil {
		return nil, err
	}
	return &codere{base: b}, nil
}

func (a *codere) RevenueThreshold() float64 { return 0 }
func (a *codere) ExposesPunters() bool      { return false }
func (a *codere) ExposesMembers() bool      { return true }

func (a *codere) Fetch(ctx context.Context, date time.Time) ([]RawRow, []string, error) {
	day := date.Format("2006-01-02")
	q := url.Values{}
	q.Set("from", day)
	q.Set("to", day)
	target := a.url("/affiliates/stats?" + q.Encode())

	body, err := a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Access-Key", a.cfg.Credential("access_key"))
		req.Header.Set("X-Secret-Key", a.cfg.Credential("secret_key"))
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if IsNoData(body) {
		return nil, noDataWarning(a.name, date), nil
	}

	rows, err := decodeJSONRecords(a.name, body, "data", codereColumns,
		[]string{ColPromCode, ColDeposit, ColStake, ColNetRevenue, ColRevenueShare, ColCPACount})
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := a.finish(rows, date)
	return rows, warnings, nil
}
