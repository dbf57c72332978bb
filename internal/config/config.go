// Package config defines the top-level configuration for the strikebot odds
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STRIKEBOT_* environment variables.
type Config struct {
	Sources   []SourceConfig  `toml:"source"`
	Movement  MovementConfig  `toml:"movement"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ProxyConfig describes one outbound proxy. Immutable after load.
type ProxyConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Protocol string `toml:"protocol"` // http, https, socks4, socks5
}

// SourceConfig holds the per-upstream-source settings: endpoint, credentials,
// rate limits, retry policy, and the scraping identity pool.
type SourceConfig struct {
	ID      string `toml:"id"`
	BaseURL string `toml:"base_url"`

	// Authentication. AuthType is "none", "api_key", or "bearer". The
	// credential comes either from ApiKey directly or from an encrypted
	// keyfile produced by `strikebot -encrypt-key`.
	AuthType         string `toml:"auth_type"`
	ApiKey           string `toml:"api_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`

	// Rate limits enforced across all sessions for this source.
	RequestsPerMinute int `toml:"requests_per_minute"`
	RequestsPerHour   int `toml:"requests_per_hour"`

	// Retry policy for soft blocks and transport failures.
	MaxRetries        int     `toml:"max_retries"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	MaxBackoffMs      int     `toml:"max_backoff_ms"`

	// Scraping identity pool.
	UserAgents        []string      `toml:"user_agents"`
	Proxies           []ProxyConfig `toml:"proxy"`
	RequestDelayMinMs int           `toml:"request_delay_min_ms"`
	RequestDelayMaxMs int           `toml:"request_delay_max_ms"`
	RandomizeHeaders  bool          `toml:"randomize_headers"`
	RotateProxies     bool          `toml:"rotate_proxies"`
	RespectRobots     bool          `toml:"respect_robots"`

	// FetchTimeout bounds a single request; exceeding it is a hard error.
	FetchTimeout duration `toml:"fetch_timeout"`
}

// Backoff returns the wait before retry attempt n (0-based), growing by
// BackoffMultiplier from a one-second base and capped at MaxBackoffMs.
func (s SourceConfig) Backoff(attempt int) time.Duration {
	backoff := time.Second
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * s.BackoffMultiplier)
	}
	if max := time.Duration(s.MaxBackoffMs) * time.Millisecond; backoff > max {
		backoff = max
	}
	return backoff
}

// DelayWindow returns the [min, max] request spacing window.
func (s SourceConfig) DelayWindow() (time.Duration, time.Duration) {
	return time.Duration(s.RequestDelayMinMs) * time.Millisecond,
		time.Duration(s.RequestDelayMaxMs) * time.Millisecond
}

// MovementConfig holds movement-classification thresholds. The defaults are
// heuristic, not calibrated against real market data; treat them as tunables.
type MovementConfig struct {
	SignificantPct float64  `toml:"significant_pct"`
	ReversePct     float64  `toml:"reverse_pct"`
	SteamPct       float64  `toml:"steam_pct"`
	SteamWindow    duration `toml:"steam_window"`
	SteamMinBooks  int      `toml:"steam_min_books"`
}

// ArbitrageConfig holds arbitrage detection parameters.
type ArbitrageConfig struct {
	Enabled           bool     `toml:"enabled"`
	TotalStake        float64  `toml:"total_stake"`         // notional per opportunity
	MinProfitPct      float64  `toml:"min_profit_pct"`      // ignore thinner margins
	HighConfidencePct float64  `toml:"high_confidence_pct"` // margin above which sharp-book opps are "high"
	SharpBooks        []string `toml:"sharp_books"`
	ThinBooks         []string `toml:"thin_books"`
	OpportunityTTL    duration `toml:"opportunity_ttl"`
	CrossMarket       bool     `toml:"cross_market"`
}

// PipelineConfig holds sync scheduling and retention parameters.
type PipelineConfig struct {
	SyncInterval      duration `toml:"sync_interval"`
	CooldownInterval  duration `toml:"cooldown_interval"` // extra wait after an all-blocked cycle
	HistoryWindowDays int      `toml:"history_window_days"`
	ArchiveEnabled    bool     `toml:"archive_enabled"`
	ArchiveRawPayload bool     `toml:"archive_raw_payload"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for cold archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MetricsConfig holds the Prometheus exposition endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Movement: MovementConfig{
			SignificantPct: 5.0,
			ReversePct:     10.0,
			SteamPct:       3.0,
			SteamWindow:    duration{5 * time.Minute},
			SteamMinBooks:  2,
		},
		Arbitrage: ArbitrageConfig{
			Enabled:           true,
			TotalStake:        1000.0,
			MinProfitPct:      0.5,
			HighConfidencePct: 3.0,
			SharpBooks:        []string{"Pinnacle", "Circa", "DraftKings"},
			ThinBooks:         []string{},
			OpportunityTTL:    duration{2 * time.Minute},
			CrossMarket:       true,
		},
		Pipeline: PipelineConfig{
			SyncInterval:      duration{5 * time.Minute},
			CooldownInterval:  duration{15 * time.Minute},
			HistoryWindowDays: 30,
			ArchiveEnabled:    false,
			ArchiveRawPayload: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "strikebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "strikebot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9105",
		},
		Notify: NotifyConfig{
			Events: []string{"session_blocked", "no_capacity", "movement_alert", "arb_opportunity", "sync_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// SourceDefaults returns a SourceConfig with the per-source defaults applied.
// Load merges TOML values on top of these for each [[source]] block.
func SourceDefaults() SourceConfig {
	return SourceConfig{
		AuthType:          "none",
		RequestsPerMinute: 30,
		RequestsPerHour:   600,
		MaxRetries:        3,
		BackoffMultiplier: 2.0,
		MaxBackoffMs:      30_000,
		RequestDelayMinMs: 1_000,
		RequestDelayMaxMs: 4_000,
		RandomizeHeaders:  true,
		RotateProxies:     true,
		RespectRobots:     true,
		FetchTimeout:      duration{30 * time.Second},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"sync":    true,
	"analyze": true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validProxyProtocols enumerates the supported proxy protocols.
var validProxyProtocols = map[string]bool{
	"http":   true,
	"https":  true,
	"socks4": true,
	"socks5": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sync, analyze, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Sources) == 0 {
		errs = append(errs, "at least one [[source]] must be configured")
	}
	seen := map[string]bool{}
	for i, src := range c.Sources {
		prefix := fmt.Sprintf("source[%d] (%s)", i, src.ID)
		if src.ID == "" {
			errs = append(errs, prefix+": id must not be empty")
		} else if seen[src.ID] {
			errs = append(errs, prefix+": duplicate source id")
		}
		seen[src.ID] = true

		if src.BaseURL == "" {
			errs = append(errs, prefix+": base_url must not be empty")
		}
		switch src.AuthType {
		case "none":
		case "api_key", "bearer":
			if src.ApiKey == "" && src.EncryptedKeyPath == "" {
				errs = append(errs, prefix+": api_key or encrypted_key_path required for auth_type "+src.AuthType)
			}
			if src.EncryptedKeyPath != "" && src.KeyPassword == "" {
				errs = append(errs, prefix+": key_password is required when encrypted_key_path is set")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown auth_type %q", prefix, src.AuthType))
		}
		if src.RequestsPerMinute <= 0 {
			errs = append(errs, prefix+": requests_per_minute must be > 0")
		}
		if src.RequestsPerHour <= 0 {
			errs = append(errs, prefix+": requests_per_hour must be > 0")
		}
		if src.MaxRetries < 0 {
			errs = append(errs, prefix+": max_retries must be >= 0")
		}
		if src.BackoffMultiplier < 1 {
			errs = append(errs, prefix+": backoff_multiplier must be >= 1")
		}
		if src.RequestDelayMinMs < 0 || src.RequestDelayMaxMs < src.RequestDelayMinMs {
			errs = append(errs, prefix+": request delay window must satisfy 0 <= min <= max")
		}
		for j, p := range src.Proxies {
			if p.Host == "" {
				errs = append(errs, fmt.Sprintf("%s: proxy[%d]: host must not be empty", prefix, j))
			}
			if p.Port <= 0 || p.Port > 65535 {
				errs = append(errs, fmt.Sprintf("%s: proxy[%d]: port must be 1-65535, got %d", prefix, j, p.Port))
			}
			if !validProxyProtocols[p.Protocol] {
				errs = append(errs, fmt.Sprintf("%s: proxy[%d]: unknown protocol %q", prefix, j, p.Protocol))
			}
		}
	}

	if c.Movement.SignificantPct <= 0 {
		errs = append(errs, "movement: significant_pct must be > 0")
	}
	if c.Movement.SteamPct <= 0 {
		errs = append(errs, "movement: steam_pct must be > 0")
	}
	if c.Movement.ReversePct < c.Movement.SignificantPct {
		errs = append(errs, "movement: reverse_pct must be >= significant_pct")
	}
	if c.Movement.SteamPct > c.Movement.SignificantPct {
		errs = append(errs, "movement: steam_pct must be <= significant_pct")
	}

	if c.Arbitrage.Enabled {
		if c.Arbitrage.TotalStake <= 0 {
			errs = append(errs, "arbitrage: total_stake must be > 0 when enabled")
		}
		if c.Arbitrage.MinProfitPct < 0 {
			errs = append(errs, "arbitrage: min_profit_pct must be >= 0")
		}
		if c.Arbitrage.HighConfidencePct < c.Arbitrage.MinProfitPct {
			errs = append(errs, "arbitrage: high_confidence_pct must be >= min_profit_pct")
		}
	}

	if c.Pipeline.SyncInterval.Duration <= 0 {
		errs = append(errs, "pipeline: sync_interval must be > 0")
	}
	if c.Pipeline.HistoryWindowDays < 1 {
		errs = append(errs, "pipeline: history_window_days must be >= 1")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Pipeline.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
