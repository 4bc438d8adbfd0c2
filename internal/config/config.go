// Package config loads the monitor's tuning knobs from an optional YAML
// overlay file and the process environment, environment always winning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v2"
)

// Config holds every tunable named in the external-interfaces section.
type Config struct {
	// Collection
	CollectInterval   time.Duration
	RequestDelay      time.Duration
	MaxConcurrent     int
	WatchdogTimeout   time.Duration

	// Hot filter
	HotVolumeThreshold    float64
	SymbolsRefreshInterval time.Duration

	// Anomaly thresholds
	MinHistoryForAnomaly  int
	FundingSpikeThreshold float64
	OISurgeThreshold      float64
	LSExtremeThreshold    float64
	TakerExtremeThreshold float64

	// Flush detector
	OIBuildupThreshold  float64
	OIBuildupMinPoints  int
	OIFlushDropPct      float64
	OIFlushCurrentMax   float64
	OIFlushLookback     int
	OIFlushCooldown     time.Duration

	// Notifier
	AlertCooldown       time.Duration
	MinAlertSeverity    string
	NotifierDelay       time.Duration
	NotifierMaxQueue    int
	MassAlertThreshold  int
	MassAlertWindow     time.Duration

	// Severity
	SeverityCriticalOI float64
	SeverityMediumOI   float64
	SeverityTopN       int

	// Stats worker
	StatsWorkerHourUTC int
	StatsMinPoints     int
	StatsLookbackDays  int

	// Archival
	ArchiveIntervalHours int
	ArchiveRetentionDays int
	ArchiveDir           string

	// Operator API
	OperatorAPIEnabled bool
	OperatorAPIPort    int
	OperatorAPIToken   string

	// Dashboard push
	DashboardWSEnabled bool
	DashboardWSPort    int

	// Analytics sink
	AnalyticsPostgresDSN string

	// Metrics
	MetricsEnabled bool

	// Storage
	StoragePath string
	ExchangeBaseURL string
}

// Default returns the configuration with every default from §6 of the spec.
func Default() Config {
	return Config{
		CollectInterval:        300 * time.Second,
		RequestDelay:           50 * time.Millisecond,
		MaxConcurrent:          10,
		WatchdogTimeout:        240 * time.Second,
		HotVolumeThreshold:     1e6,
		SymbolsRefreshInterval: 4 * time.Hour,
		MinHistoryForAnomaly:   12,
		FundingSpikeThreshold:  0.001,
		OISurgeThreshold:       0.10,
		LSExtremeThreshold:     3.0,
		TakerExtremeThreshold:  2.0,
		OIBuildupThreshold:     3.0,
		OIBuildupMinPoints:     12,
		OIFlushDropPct:         2.0,
		OIFlushCurrentMax:      2.0,
		OIFlushLookback:        24,
		OIFlushCooldown:        30 * time.Minute,
		AlertCooldown:          time.Hour,
		MinAlertSeverity:       "high",
		NotifierDelay:          500 * time.Millisecond,
		NotifierMaxQueue:       100,
		MassAlertThreshold:     5,
		MassAlertWindow:        60 * time.Second,
		SeverityCriticalOI:     1e10,
		SeverityMediumOI:       1e8,
		SeverityTopN:           20,
		StatsWorkerHourUTC:     4,
		StatsMinPoints:         100,
		StatsLookbackDays:      7,
		ArchiveIntervalHours:   24,
		ArchiveRetentionDays:   90,
		ArchiveDir:             "./archive",
		OperatorAPIEnabled:     false,
		OperatorAPIPort:        8089,
		DashboardWSEnabled:     false,
		DashboardWSPort:        8090,
		MetricsEnabled:         true,
		StoragePath:            "./data/monitor.db",
		ExchangeBaseURL:        "https://fapi.binance.com",
	}
}

// yamlOverlay mirrors the subset of Config keys an operator may set in a
// YAML file. Field names match the environment variable names in §6,
// lower-cased, so one mental model covers both sources.
type yamlOverlay map[string]interface{}

// Load builds a Config starting from defaults, applying an optional YAML
// file first, then `.env` plus the process environment — environment
// variables always take precedence over the YAML overlay (scenario S7).
func Load(yamlPath, envFile string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			var overlay yamlOverlay
			if err := yaml.Unmarshal(data, &overlay); err != nil {
				return cfg, fmt.Errorf("parse yaml overlay %s: %w", yamlPath, err)
			}
			applyYAML(&cfg, overlay)
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read yaml overlay %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		// Missing .env is not an error — the process environment alone is valid.
		_ = godotenv.Load(envFile)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, overlay yamlOverlay) {
	if overlay == nil {
		return
	}
	if v, ok := durationSeconds(overlay, "collect_interval"); ok {
		cfg.CollectInterval = v
	}
	if v, ok := overlay["max_concurrent"]; ok {
		cfg.MaxConcurrent = toInt(v, cfg.MaxConcurrent)
	}
	if v, ok := overlay["storage_path"].(string); ok {
		cfg.StoragePath = v
	}
	if v, ok := overlay["exchange_base_url"].(string); ok {
		cfg.ExchangeBaseURL = v
	}
	if v, ok := overlay["min_alert_severity"].(string); ok {
		cfg.MinAlertSeverity = v
	}
	if v, ok := overlay["archive_dir"].(string); ok {
		cfg.ArchiveDir = v
	}
}

func durationSeconds(overlay yamlOverlay, key string) (time.Duration, bool) {
	v, ok := overlay[key]
	if !ok {
		return 0, false
	}
	return time.Duration(toFloat(v, 0)) * time.Second, true
}

func toInt(v interface{}, fallback int) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return fallback
}

func toFloat(v interface{}, fallback float64) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return fallback
}

func applyEnv(cfg *Config) {
	envDuration("COLLECT_INTERVAL", &cfg.CollectInterval, time.Second)
	envDurationFloat("REQUEST_DELAY", &cfg.RequestDelay)
	envInt("MAX_CONCURRENT", &cfg.MaxConcurrent)
	envDuration("WATCHDOG_TIMEOUT", &cfg.WatchdogTimeout, time.Second)

	envFloat("HOT_VOLUME_THRESHOLD", &cfg.HotVolumeThreshold)
	envDuration("SYMBOLS_REFRESH_INTERVAL", &cfg.SymbolsRefreshInterval, time.Hour)

	envInt("MIN_HISTORY_FOR_ANOMALY", &cfg.MinHistoryForAnomaly)
	envFloat("FUNDING_SPIKE_THRESHOLD", &cfg.FundingSpikeThreshold)
	envFloat("OI_SURGE_THRESHOLD", &cfg.OISurgeThreshold)
	envFloat("LS_EXTREME_THRESHOLD", &cfg.LSExtremeThreshold)
	envFloat("TAKER_EXTREME_THRESHOLD", &cfg.TakerExtremeThreshold)

	envFloat("OI_BUILDUP_THRESHOLD", &cfg.OIBuildupThreshold)
	envInt("OI_BUILDUP_MIN_POINTS", &cfg.OIBuildupMinPoints)
	envFloat("OI_FLUSH_DROP_PCT", &cfg.OIFlushDropPct)
	envFloat("OI_FLUSH_CURRENT_MAX", &cfg.OIFlushCurrentMax)
	envInt("OI_FLUSH_LOOKBACK", &cfg.OIFlushLookback)
	envDurationSeconds("OI_FLUSH_COOLDOWN", &cfg.OIFlushCooldown)

	envDurationSeconds("ALERT_COOLDOWN", &cfg.AlertCooldown)
	envString("MIN_ALERT_SEVERITY", &cfg.MinAlertSeverity)
	envDurationFloat("NOTIFIER_DELAY", &cfg.NotifierDelay)
	envInt("NOTIFIER_MAX_QUEUE", &cfg.NotifierMaxQueue)
	envInt("MASS_ALERT_THRESHOLD", &cfg.MassAlertThreshold)
	envDurationSeconds("MASS_ALERT_WINDOW", &cfg.MassAlertWindow)

	envFloat("SEVERITY_CRITICAL_OI", &cfg.SeverityCriticalOI)
	envFloat("SEVERITY_MEDIUM_OI", &cfg.SeverityMediumOI)
	envInt("SEVERITY_TOP_N", &cfg.SeverityTopN)

	envInt("STATS_WORKER_HOUR_UTC", &cfg.StatsWorkerHourUTC)
	envInt("STATS_MIN_POINTS", &cfg.StatsMinPoints)
	envInt("STATS_LOOKBACK_DAYS", &cfg.StatsLookbackDays)

	envInt("ARCHIVE_INTERVAL_HOURS", &cfg.ArchiveIntervalHours)
	envInt("ARCHIVE_RETENTION_DAYS", &cfg.ArchiveRetentionDays)
	envString("ARCHIVE_DIR", &cfg.ArchiveDir)

	envBool("OPERATOR_API_ENABLED", &cfg.OperatorAPIEnabled)
	envInt("OPERATOR_API_PORT", &cfg.OperatorAPIPort)
	envString("OPERATOR_API_TOKEN", &cfg.OperatorAPIToken)

	envBool("DASHBOARD_WS_ENABLED", &cfg.DashboardWSEnabled)
	envInt("DASHBOARD_WS_PORT", &cfg.DashboardWSPort)

	envString("ANALYTICS_POSTGRES_DSN", &cfg.AnalyticsPostgresDSN)
	envBool("METRICS_ENABLED", &cfg.MetricsEnabled)

	envString("STORAGE_PATH", &cfg.StoragePath)
	envString("EXCHANGE_BASE_URL", &cfg.ExchangeBaseURL)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envDuration(key string, dst *time.Duration, unit time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(n * float64(unit))
		}
	}
}

// envDurationFloat parses a fractional-seconds value like "0.05" (REQUEST_DELAY=0.05 s).
func envDurationFloat(key string, dst *time.Duration) {
	envDuration(key, dst, time.Second)
}

func envDurationSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

// Validate rejects configurations that would make the monitor misbehave
// silently rather than fail fast at startup.
func (c Config) Validate() error {
	if c.CollectInterval <= 0 {
		return fmt.Errorf("COLLECT_INTERVAL must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT must be positive")
	}
	if c.WatchdogTimeout <= 0 {
		return fmt.Errorf("WATCHDOG_TIMEOUT must be positive")
	}
	if c.NotifierMaxQueue <= 0 {
		return fmt.Errorf("NOTIFIER_MAX_QUEUE must be positive")
	}
	switch c.MinAlertSeverity {
	case "critical", "high", "medium", "low":
	default:
		return fmt.Errorf("MIN_ALERT_SEVERITY must be one of critical/high/medium/low, got %q", c.MinAlertSeverity)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("STORAGE_PATH must not be empty")
	}
	return nil
}
