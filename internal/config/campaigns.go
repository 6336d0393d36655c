package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAdapterTimeout = 60 * time.Second
	defaultSchedule       = "0 0 6 * * *"
)

// CampaignConfig binds one campaign title to a bookmaker adapter and its
// credentials and thresholds.
type CampaignConfig struct {
	Title   string `yaml:"title"`
	Adapter string `yaml:"adapter"`
	BaseURL string `yaml:"base_url"`
	// Credential values are expanded against the environment, so secrets
	// can stay out of the file: `api_key: ${BETPLAY_KEY}`.
	Credentials map[string]string `yaml:"credentials"`

	RevenueThreshold   float64 `yaml:"revenue_threshold"`
	CPAConditionFromRS float64 `yaml:"cpa_condition_from_rs"`
	RevenueShareOnly   bool    `yaml:"revenue_share_only"`
	IntraDay           bool    `yaml:"intra_day"`
	DropZeroRows       bool    `yaml:"drop_zero_rows"`
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
	Schedule           string  `yaml:"schedule"`
}

// Timeout is the per-request deadline for the campaign's adapter.
func (c CampaignConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultAdapterTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Credential returns the named credential or "".
func (c CampaignConfig) Credential(name string) string {
	return c.Credentials[name]
}

type campaignsFile struct {
	Campaigns []CampaignConfig `yaml:"campaigns"`
}

// LoadCampaigns reads the campaign registry file.
func LoadCampaigns(path string) ([]CampaignConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaigns file: %w", err)
	}
	return ParseCampaigns(raw)
}

func ParseCampaigns(raw []byte) ([]CampaignConfig, error) {
	var f campaignsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse campaigns file: %w", err)
	}

	seen := make(map[string]bool, len(f.Campaigns))
	for i := range f.Campaigns {
		c := &f.Campaigns[i]
		if c.Title == "" {
			return nil, fmt.Errorf("campaign #%d: title is required", i+1)
		}
		if c.Adapter == "" {
			return nil, fmt.Errorf("campaign %q: adapter is required", c.Title)
		}
		if seen[c.Title] {
			return nil, fmt.Errorf("campaign %q declared twice", c.Title)
		}
		seen[c.Title] = true

		if c.Schedule == "" {
			c.Schedule = defaultSchedule
		}
		for k, v := range c.Credentials {
			c.Credentials[k] = os.ExpandEnv(v)
		}
	}
	return f.Campaigns, nil
}
