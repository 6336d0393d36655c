package bookmaker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betenlace/affiliates/internal/config"
	"github.com/betenlace/affiliates/internal/domain"
)

// yajuego serves a per tracker CSV behind a form login. The session cookie
// lives in a jar created for each Fetch.
//
//	"Date","Tracker","Deposits","Stakes","NGR","Commission","Signups","FTDs","Wagering Players"
//
// The feed has no CPA column: each full revenue_threshold of commission
// counts as one CPA.
type yajuego struct {
	base
}

var yajuegoColumns = columnMap{
	"Date":             ColDate,
	"Tracker":          ColPromCode,
	"Deposits":         ColDeposit,
	"Stakes":           ColStake,
	"NGR":              ColNetRevenue,
	"Commission":       ColRevenueShare,
	"Signups":          ColRegisteredCount,
	"FTDs":             ColFirstDepositCount,
	"Wagering Players": ColWageringCount,
}

func newYajuego(cfg config.CampaignConfig, opts []ClientOption) (Adapter, error) {
	if cfg.RevenueThreshold <= 0 {
		return nil, fmt.Errorf("yajuego: revenue_threshold must be positive")
	}
	b, err := newBase("yajuego", cfg, opts, "username", "password")
	if err != nil {
		return nil, err
	}
	return &yajuego{base: b}, nil
}

func (a *yajuego) RevenueThreshold() float64 { return 0 }
func (a *yajuego) ExposesPunters() bool      { return false }
func (a *yajuego) ExposesMembers() bool      { return true }

func (a *yajuego) login(ctx context.Context, c *Client) error {
	form := url.Values{}
	form.Set("username", a.cfg.Credential("username"))
	form.Set("password", a.cfg.Credential("password"))
	encoded := form.Encode()

	_, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url("/login"), strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	return err
}

func (a *yajuego) Fetch(ctx context.Context, date time.Time) ([]RawRow, []string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("yajuego: cookie jar: %w", err)
	}
	c := a.client.withJar(jar)
	if err := a.login(ctx, c); err != nil {
		return nil, nil, err
	}

	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	target := a.url("/reports/daily.csv?" + q.Encode())

	body, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	if IsNoData(body) {
		return nil, noDataWarning(a.name, date), nil
	}

	rows, err := decodeCSV(a.name, body, yajuegoColumns,
		[]string{ColPromCode, ColDeposit, ColStake, ColNetRevenue, ColRevenueShare})
	if err != nil {
		return nil, nil, err
	}

	threshold := decimal.NewFromFloat(a.cfg.RevenueThreshold)
	for i, r := range rows {
		raw := strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(r[ColRevenueShare])), ",", "")
		if raw == "" {
			r[ColCPACount] = "0"
			continue
		}
		rs, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, nil, &domain.UpstreamError{Source: a.name, Err: fmt.Errorf("row %d commission: %w", i+1, err)}
		}
		cpa := rs.Abs().Div(threshold).Floor().IntPart()
		r[ColCPACount] = fmt.Sprint(cpa)
	}

	rows, warnings := a.finish(rows, date)
	return rows, warnings, nil
}
