package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
	"github.com/betenlace/affiliates/internal/domain"
	"github.com/betenlace/affiliates/internal/metrics"
)

// Provider returns the price of one unit of base in every currency it
// quotes, as of date.
type Provider interface {
	Rates(ctx context.Context, base currency.Code, date time.Time) (map[currency.Code]float64, error)
}

// HTTPProvider calls a historical-rates endpoint:
//
//	GET {BaseURL}?base=USD&date=2024-03-05&api_key=...
//	{"results": {"COP": 3912.4, "EUR": 0.92, ...}}
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

type ratesResponse struct {
	Results map[string]float64 `json:"results"`
}

func (p *HTTPProvider) Rates(ctx context.Context, base currency.Code, date time.Time) (map[currency.Code]float64, error) {
	q := url.Values{}
	q.Set("base", base.String())
	q.Set("date", date.Format("2006-01-02"))
	if p.APIKey != "" {
		q.Set("api_key", p.APIKey)
	}
	sep := "?"
	if strings.Contains(p.BaseURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+sep+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Client.Do(req)
	if err != nil {
		metrics.ObserveUpstream("fx", 0, start)
		return nil, &domain.UpstreamError{Source: "fx", Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream("fx", resp.StatusCode, start)

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{Source: "fx", Status: resp.StatusCode,
			Err: fmt.Errorf("rates for %s", base)}
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &domain.UpstreamError{Source: "fx", Err: fmt.Errorf("decode rates for %s: %w", base, err)}
	}
	if len(body.Results) == 0 {
		return nil, &domain.UpstreamError{Source: "fx", Err: fmt.Errorf("empty rates for %s", base)}
	}

	out := make(map[currency.Code]float64, len(body.Results))
	for code, rate := range body.Results {
		c, err := currency.Parse(code)
		if err != nil || rate <= 0 {
			continue
		}
		out[c] = rate
	}
	return out, nil
}
