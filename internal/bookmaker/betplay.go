package bookmaker

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/betenlace/affiliates/internal/config"
)

// betplay serves a per-punter CSV report authenticated by a static key in
// the query string.
//
// Expected header (quoted):
//
//	"Fecha","Codigo Promocional","Jugador","Depositos","Apuestas","Ingresos Netos","Revenue Share","Fecha Registro","Fecha Primer Deposito"
type betplay struct {
	base
}

var betplayColumns = columnMap{
	"Fecha":                 ColDate,
	"Codigo Promocional":    ColPromCode,
	"Jugador":               ColPunterID,
	"Depositos":             ColDeposit,
	"Apuestas":              ColStake,
	"Ingresos Netos":        ColNetRevenue,
	"Revenue Share":         ColRevenueShare,
	"Fecha Registro":        ColRegisteredAt,
	"Fecha Primer Deposito": ColFirstDepositAt,
}

func newBetplay(cfg config.CampaignConfig, opts []ClientOption) (Adapter, error) {
	b, err := newBase("betplay", cfg, opts, "api_key")
	if err != nil {
		return nil, err
	}
	return &betplay{base: b}, nil
}

func (a *betplay) RevenueThreshold() float64 { return a.cfg.CPAConditionFromRS }
func (a *betplay) ExposesPunters() bool      { return true }
func (a *betplay) ExposesMembers() bool      { return false }

func (a *betplay) Fetch(ctx context.Context, date time.Time) ([]RawRow, []string, error) {
	q := url.Values{}
	q.Set("key", a.cfg.Credential("api_key"))
	q.Set("date", date.Format("2006-01-02"))
	target := a.url("/reports/players.csv?" + q.Encode())

	body, err := a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	if IsNoData(body) {
		return nil, noDataWarning(a.name, date), nil
	}

	rows, err := decodeCSV(a.name, body, betplayColumns,
		[]string{ColPromCode, ColPunterID, ColDeposit, ColStake, ColNetRevenue, ColRevenueShare})
	if err != nil {
		return nil, nil, err
	}
	rows, warnings := a.finish(rows, date)
	return rows, warnings, nil
}
