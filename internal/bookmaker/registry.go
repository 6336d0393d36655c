package bookmaker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/betenlace/affiliates/internal/config"
	"github.com/betenlace/affiliates/internal/domain"
)

type factory func(cfg config.CampaignConfig, opts []ClientOption) (Adapter, error)

var factories = map[string]factory{
	"betplay":   newBetplay,
	"codere":    newCodere,
	"betsson":   newBetsson,
	"yajuego":   newYajuego,
	"doradobet": newDoradobet,
}

// Kinds lists the adapter kinds campaigns.yaml may name.
func Kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Registry maps campaign titles to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds one adapter per configured campaign. opts are applied
// to every adapter's HTTP client.
func NewRegistry(cfgs []config.CampaignConfig, opts ...ClientOption) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(cfgs))}
	for _, cfg := range cfgs {
		f, ok := factories[strings.ToLower(cfg.Adapter)]
		if !ok {
			return nil, fmt.Errorf("campaign %q: unknown adapter %q (known: %s)",
				cfg.Title, cfg.Adapter, strings.Join(Kinds(), ", "))
		}
		a, err := f(cfg, opts)
		if err != nil {
			return nil, fmt.Errorf("campaign %q: %w", cfg.Title, err)
		}
		r.adapters[cfg.Title] = a
	}
	return r, nil
}

// Register binds title to a, replacing any previous adapter.
func (r *Registry) Register(title string, a Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[title] = a
}

func (r *Registry) Get(title string) (Adapter, error) {
	a, ok := r.adapters[title]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAdapterNotFound, title)
	}
	return a, nil
}

// Titles returns every registered campaign title, sorted.
func (r *Registry) Titles() []string {
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// base carries what every adapter shares.
type base struct {
	name   string
	cfg    config.CampaignConfig
	client *Client
}

func newBase(kind string, cfg config.CampaignConfig, opts []ClientOption, required ...string) (base, error) {
	if cfg.BaseURL == "" {
		return base{}, fmt.Errorf("%s: base_url is required", kind)
	}
	for _, cred := range required {
		if cfg.Credential(cred) == "" {
			return base{}, fmt.Errorf("%s: credential %q is required", kind, cred)
		}
	}
	return base{
		name:   kind,
		cfg:    cfg,
		client: NewClient(kind, cfg.Timeout(), opts...),
	}, nil
}

func (b *base) Name() string           { return b.name }
func (b *base) IntraDay() bool         { return b.cfg.IntraDay }
func (b *base) DropZeroRows() bool     { return b.cfg.DropZeroRows }
func (b *base) RevenueShareOnly() bool { return b.cfg.RevenueShareOnly }

func (b *base) url(path string) string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + path
}

// finish stamps the requested day on rows lacking a date and drops
// unregistered punters.
func (b *base) finish(rows []RawRow, date time.Time) ([]RawRow, []string) {
	day := date.Format("2006-01-02")
	for _, r := range rows {
		if v, ok := r[ColDate]; !ok || v == nil || v == "" {
			r[ColDate] = day
		}
	}
	return dropUnregistered(b.name, rows)
}
