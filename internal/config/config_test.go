package config

import (
	"testing"
	"time"

	"github.com/betenlace/affiliates/internal/currency"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PLATFORM_TZ", "")
	t.Setenv("MIN_CPA_TRACKER_DAY", "")
	t.Setenv("MIN_WITHDRAWAL_COP", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Platform.TimeZone != "America/Bogota" {
		t.Fatalf("time zone: got %q", cfg.Platform.TimeZone)
	}
	if cfg.Ingestion.MinCPATrackerDay != 5 {
		t.Fatalf("min cpa tracker day: got %d", cfg.Ingestion.MinCPATrackerDay)
	}
	if cfg.Settlement.MinWithdrawal.For(currency.COP) != 200_000 {
		t.Fatalf("min COP: got %v", cfg.Settlement.MinWithdrawal.For(currency.COP))
	}
	if cfg.FX.Percentage != 0.95 {
		t.Fatalf("fx percentage: got %v", cfg.FX.Percentage)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PLATFORM_TZ", "America/Mexico_City")
	t.Setenv("MIN_CPA_TRACKER_DAY", "8")
	t.Setenv("MIN_WITHDRAWAL_MXN", "1500")
	t.Setenv("CHAT_WEBHOOK_ERROR", "https://chat.example.com/hook/err")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Platform.Location.String() != "America/Mexico_City" {
		t.Fatalf("location: got %s", cfg.Platform.Location)
	}
	if cfg.Ingestion.MinCPATrackerDay != 8 {
		t.Fatalf("min cpa tracker day: got %d", cfg.Ingestion.MinCPATrackerDay)
	}
	if cfg.Settlement.MinWithdrawal.For(currency.MXN) != 1500 {
		t.Fatalf("min MXN: got %v", cfg.Settlement.MinWithdrawal.For(currency.MXN))
	}
	if cfg.Alerting.Webhooks["ERROR"] != "https://chat.example.com/hook/err" {
		t.Fatalf("webhooks: %v", cfg.Alerting.Webhooks)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("INGEST_WORKERS", "many")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseCampaigns(t *testing.T) {
	t.Setenv("BETPLAY_KEY", "s3cret")
	raw := []byte(`
campaigns:
  - title: betplay_co
    adapter: betplay
    base_url: https://reports.betplay.example
    credentials:
      api_key: ${BETPLAY_KEY}
    cpa_condition_from_rs: 12000
    drop_zero_rows: true
  - title: yajuego_ng
    adapter: yajuego
    revenue_threshold: 35
    timeout_seconds: 20
    schedule: "0 15 7 * * *"
`)
	cs, err := ParseCampaigns(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(cs))
	}
	if cs[0].Credential("api_key") != "s3cret" {
		t.Fatalf("credential not expanded: %q", cs[0].Credential("api_key"))
	}
	if cs[0].Schedule != defaultSchedule || cs[0].Timeout() != 60*time.Second {
		t.Fatalf("defaults not applied: %+v", cs[0])
	}
	if cs[1].RevenueThreshold != 35 || cs[1].Timeout() != 20*time.Second {
		t.Fatalf("yajuego: %+v", cs[1])
	}
}

func TestParseCampaignsRejectsDuplicates(t *testing.T) {
	raw := []byte(`
campaigns:
  - {title: a, adapter: betplay}
  - {title: a, adapter: codere}
`)
	if _, err := ParseCampaigns(raw); err == nil {
		t.Fatalf("expected duplicate error")
	}
}
