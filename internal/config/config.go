// Package config loads the process configuration from hardcoded defaults,
// an optional YAML file, and environment variables, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sniper core.
type Config struct {
	Environment string   `mapstructure:"environment"`
	Port        int      `mapstructure:"port"`
	LogLevel    string   `mapstructure:"log_level"`
	Database    Database `mapstructure:"database"`
	Redis       Redis    `mapstructure:"redis"`
	NATS        NATS     `mapstructure:"nats"`
	Upstream    Upstream `mapstructure:"upstream"`
	Scan        Scan     `mapstructure:"scan"`
	ProxyPool   ProxyPool `mapstructure:"proxy_pool"`
	Passive     Passive  `mapstructure:"passive"`
	DryRun      bool     `mapstructure:"dry_run"`
	UseProxies  bool     `mapstructure:"use_proxies"`
}

// Database holds durable-store connection settings.
type Database struct {
	URL string `mapstructure:"url"`
}

// Redis holds cache/cooldown-bookkeeping connection settings.
type Redis struct {
	URL string `mapstructure:"url"`
}

// NATS holds outbound-event-bus connection settings.
type NATS struct {
	URL string `mapstructure:"url"`
}

// Upstream holds the booking platform's API base URL and credentials.
type Upstream struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Scan holds Scanner/Scheduler timing knobs (spec §6).
type Scan struct {
	LeadTime     time.Duration `mapstructure:"lead_time"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReleaseZone  string        `mapstructure:"release_zone"`
}

// ProxyPool holds the ISP proxy pool's lifecycle constants (spec §4.C).
type ProxyPool struct {
	CoolDown        time.Duration `mapstructure:"cool_down"`
	MinReuseDelay   time.Duration `mapstructure:"min_reuse_delay"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ScanRateLimitTTL time.Duration `mapstructure:"scan_rate_limit_ttl"`
}

// Passive holds the passive calendar monitor's timing knobs.
type Passive struct {
	Enabled         bool          `mapstructure:"enabled"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BlackoutMinutes int           `mapstructure:"blackout_minutes"`
	VenueGap        time.Duration `mapstructure:"venue_gap"`
}

// Load reads configuration from ./config.yaml (if present), then
// environment variables, falling back to defaults set below.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()

	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("nats.url", "NATS_URL")
	viper.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	viper.BindEnv("upstream.api_key", "UPSTREAM_API_KEY")
	viper.BindEnv("environment", "ENVIRONMENT")
	viper.BindEnv("log_level", "LOG_LEVEL")
	viper.BindEnv("dry_run", "DRY_RUN")
	viper.BindEnv("use_proxies", "USE_PROXIES")
	viper.BindEnv("scan.lead_time", "LEAD_TIME_SECONDS")
	viper.BindEnv("scan.interval", "SCAN_INTERVAL_MS")
	viper.BindEnv("scan.timeout", "SCAN_TIMEOUT_SECONDS")
	viper.BindEnv("passive.enabled", "PASSIVE_MONITOR_ENABLED")
	viper.BindEnv("passive.poll_interval", "PASSIVE_POLL_INTERVAL_MS")
	viper.BindEnv("passive.blackout_minutes", "PASSIVE_BLACKOUT_MINUTES")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// LEAD_TIME_SECONDS / SCAN_INTERVAL_MS / SCAN_TIMEOUT_SECONDS /
	// PASSIVE_POLL_INTERVAL_MS are documented in raw seconds/milliseconds;
	// turn a bare integer into a duration before unmarshalling, since viper
	// can't know the unit of a bare env-var integer.
	if v := viper.GetInt("scan.lead_time"); v > 0 {
		viper.Set("scan.lead_time", time.Duration(v)*time.Second)
	}
	if v := viper.GetInt("scan.interval"); v > 0 {
		viper.Set("scan.interval", time.Duration(v)*time.Millisecond)
	}
	if v := viper.GetInt("scan.timeout"); v > 0 {
		viper.Set("scan.timeout", time.Duration(v)*time.Second)
	}
	if v := viper.GetInt("passive.poll_interval"); v > 0 {
		viper.Set("passive.poll_interval", time.Duration(v)*time.Millisecond)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")

	viper.SetDefault("database.url", "postgres://localhost:5432/sniper?sslmode=disable")
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("nats.url", "nats://localhost:4222")

	viper.SetDefault("upstream.base_url", "")
	viper.SetDefault("upstream.api_key", "")
	viper.SetDefault("upstream.timeout", "30s")

	viper.SetDefault("dry_run", false)
	viper.SetDefault("use_proxies", false)

	viper.SetDefault("scan.lead_time", "45s")
	viper.SetDefault("scan.interval", "1s")
	viper.SetDefault("scan.timeout", "120s")
	viper.SetDefault("scan.release_zone", "America/New_York")

	viper.SetDefault("proxy_pool.cool_down", "5m")
	viper.SetDefault("proxy_pool.min_reuse_delay", "2s")
	viper.SetDefault("proxy_pool.acquire_timeout", "10s")
	viper.SetDefault("proxy_pool.poll_interval", "100ms")
	viper.SetDefault("proxy_pool.scan_rate_limit_ttl", "15m")

	viper.SetDefault("passive.enabled", false)
	viper.SetDefault("passive.poll_interval", "60s")
	viper.SetDefault("passive.blackout_minutes", 5)
	viper.SetDefault("passive.venue_gap", "500ms")
}
