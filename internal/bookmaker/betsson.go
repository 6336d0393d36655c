package bookmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/betenlace/affiliates/internal/config"
	"github.com/betenlace/affiliates/internal/domain"
)

// betsson serves a per-player JSON report behind OAuth2 client credentials.
// A token is requested on every Fetch; none is cached.
//
//	{"players": [{"player_id": "u1", "btag": "P1", "signup_date": "2024-03-01",
//	  "first_deposit_date": "2024-03-02", "deposits": 50, "bets": 300,
//	  "ngr": 25, "commission": 7.5, "cpa": 1}]}
type betsson struct {
	base
}

var betssonColumns = columnMap{
	"player_id":          ColPunterID,
	"btag":               ColPromCode,
	"activity_date":      ColDate,
	"signup_date":        ColRegisteredAt,
	"first_deposit_date": ColFirstDepositAt,
	"deposits":           ColDeposit,
	"bets":               ColStake,
	"ngr":                ColNetRevenue,
	"commission":         ColRevenueShare,
	"cpa":                ColCPACount,
	"cpa_date":           ColCPAAt,
}

func newBetsson(cfg config.CampaignConfig, opts []ClientOption) (Adapter, error) {
	b, err := newBase("betsson", cfg, opts, "client_id", "client_secret")
	if err != nil {
		return nil, err
	}
	return &betsson{base: b}, nil
}

func (a *betsson) RevenueThreshold() float64 { return 0 }
func (a *betsson) ExposesPunters() bool      { return true }
func (a *betsson) ExposesMembers() bool      { return false }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (a *betsson) token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.cfg.Credential("client_id"))
	form.Set("client_secret", a.cfg.Credential("client_secret"))
	if scope := a.cfg.Credential("scope"); scope != "" {
		form.Set("scope", scope)
	}
	encoded := form.Encode()

	body, err := a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url("/oauth/token"), strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", &domain.UpstreamError{Source: a.name, Err: fmt.Errorf("token response without access_token")}
	}
	return tok.AccessToken, nil
}

func (a *betsson) Fetch(ctx context.Context, date time.Time) ([]RawRow, []string, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, nil, err
	}

	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	target := a.url("/api/v1/players?" + q.Encode())

	body, err := a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if IsNoData(body) {
		return nil, noDataWarning(a.name, date), nil
	}

	rows, err := decodeJSONRecords(a.name, body, "players", betssonColumns,
		[]string{ColPunterID, ColPromCode, ColDeposit, ColStake, ColNetRevenue, ColCPACount})
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := a.finish(rows, date)
	return rows, warnings, nil
}
