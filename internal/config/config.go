package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/betenlace/affiliates/internal/currency"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Platform   PlatformConfig
	Ingestion  IngestionConfig
	FX         FXConfig
	Alerting   AlertingConfig
	Settlement SettlementConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Path     string
	SeedFile string
}

type PlatformConfig struct {
	TimeZone string
	Location *time.Location
}

type IngestionConfig struct {
	MinCPATrackerDay   int
	Workers            int
	CampaignsFile      string
	SchedulerEnabled   bool
	FxSchedule         string
	SettlementSchedule string
	ClicksSchedule     string
}

type FXConfig struct {
	ProviderURL string
	ProviderKey string
	Percentage  float64
	Timeout     time.Duration
}

// AlertingConfig maps a chat channel (INFO, WARNING, ERROR) to its webhook.
type AlertingConfig struct {
	Webhooks map[string]string
}

type SettlementConfig struct {
	BankAccountsLimit int
	MinWithdrawal     currency.MinWithdrawal
}

// Channels the log sink posts to.
var Channels = []string{"INFO", "WARNING", "ERROR"}

func Load() (*Config, error) {
	_ = godotenv.Load()

	tz := getEnv("PLATFORM_TZ", "America/Bogota")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load PLATFORM_TZ %q: %w", tz, err)
	}

	minCPA, err := getInt("MIN_CPA_TRACKER_DAY", 5)
	if err != nil {
		return nil, err
	}
	workers, err := getInt("INGEST_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	bankLimit, err := getInt("BANK_ACCOUNTS_LIMIT", 3)
	if err != nil {
		return nil, err
	}
	fxPct, err := getFloat("FX_PERCENTAGE", 0.95)
	if err != nil {
		return nil, err
	}
	fxTimeout, err := getInt("FX_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	schedulerEnabled, _ := strconv.ParseBool(getEnv("SCHEDULER_ENABLED", "false"))

	minWithdrawal := currency.DefaultMinWithdrawal()
	for _, c := range currency.All() {
		key := "MIN_WITHDRAWAL_" + c.String()
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", key, err)
			}
			minWithdrawal[c] = f
		}
	}

	webhooks := map[string]string{}
	for _, ch := range Channels {
		if url := os.Getenv("CHAT_WEBHOOK_" + ch); url != "" {
			webhooks[ch] = url
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path:     getEnv("DB_PATH", "affiliates.db"),
			SeedFile: getEnv("SEED_FILE", "testdata/seed.json"),
		},
		Platform: PlatformConfig{
			TimeZone: tz,
			Location: loc,
		},
		Ingestion: IngestionConfig{
			MinCPATrackerDay:   minCPA,
			Workers:            workers,
			CampaignsFile:      getEnv("CAMPAIGNS_FILE", "campaigns.yaml"),
			SchedulerEnabled:   schedulerEnabled,
			FxSchedule:         getEnv("FX_SCHEDULE", "0 30 0 * * *"),
			SettlementSchedule: getEnv("SETTLEMENT_SCHEDULE", "0 0 3 1 * *"),
			ClicksSchedule:     getEnv("CLICKS_SCHEDULE", "0 0 4 * * *"),
		},
		FX: FXConfig{
			ProviderURL: getEnv("FX_PROVIDER_URL", ""),
			ProviderKey: getEnv("FX_PROVIDER_KEY", ""),
			Percentage:  fxPct,
			Timeout:     time.Duration(fxTimeout) * time.Second,
		},
		Alerting: AlertingConfig{
			Webhooks: webhooks,
		},
		Settlement: SettlementConfig{
			BankAccountsLimit: bankLimit,
			MinWithdrawal:     minWithdrawal,
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
