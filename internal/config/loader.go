package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STRIKEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}

	// [[source]] blocks replace the (empty) default slice wholesale, so the
	// per-source defaults are merged afterwards.
	for i := range cfg.Sources {
		applySourceDefaults(&cfg.Sources[i], md)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applySourceDefaults fills absent SourceConfig fields from SourceDefaults.
// Keys that carry a meaningful zero or false (max_retries, the delay window,
// the anti-detection toggles) are defaulted on TOML key absence, so an
// explicit `max_retries = 0` disables retries rather than reverting to the
// default. Key presence is tracked per key path, not per [[source]] block; a
// key set in one block counts as set in all of them.
func applySourceDefaults(src *SourceConfig, md toml.MetaData) {
	def := SourceDefaults()
	if src.AuthType == "" {
		src.AuthType = def.AuthType
	}
	if src.RequestsPerMinute == 0 {
		src.RequestsPerMinute = def.RequestsPerMinute
	}
	if src.RequestsPerHour == 0 {
		src.RequestsPerHour = def.RequestsPerHour
	}
	if !md.IsDefined("source", "max_retries") {
		src.MaxRetries = def.MaxRetries
	}
	if src.BackoffMultiplier == 0 {
		src.BackoffMultiplier = def.BackoffMultiplier
	}
	if src.MaxBackoffMs == 0 {
		src.MaxBackoffMs = def.MaxBackoffMs
	}
	if !md.IsDefined("source", "request_delay_min_ms") && !md.IsDefined("source", "request_delay_max_ms") {
		src.RequestDelayMinMs = def.RequestDelayMinMs
		src.RequestDelayMaxMs = def.RequestDelayMaxMs
	}
	if !md.IsDefined("source", "randomize_headers") {
		src.RandomizeHeaders = def.RandomizeHeaders
	}
	if !md.IsDefined("source", "rotate_proxies") {
		src.RotateProxies = def.RotateProxies
	}
	if !md.IsDefined("source", "respect_robots") {
		src.RespectRobots = def.RespectRobots
	}
	if src.FetchTimeout.Duration == 0 {
		src.FetchTimeout = def.FetchTimeout
	}
}

// applyEnvOverrides reads well-known STRIKEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
// Per-source fields are not overridable by env; sources are file-defined.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STRIKEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STRIKEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STRIKEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STRIKEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STRIKEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STRIKEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STRIKEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STRIKEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STRIKEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STRIKEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STRIKEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STRIKEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STRIKEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STRIKEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STRIKEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STRIKEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STRIKEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STRIKEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "STRIKEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STRIKEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STRIKEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STRIKEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STRIKEBOT_S3_FORCE_PATH_STYLE")

	// ── Movement ──
	setFloat64(&cfg.Movement.SignificantPct, "STRIKEBOT_MOVEMENT_SIGNIFICANT_PCT")
	setFloat64(&cfg.Movement.ReversePct, "STRIKEBOT_MOVEMENT_REVERSE_PCT")
	setFloat64(&cfg.Movement.SteamPct, "STRIKEBOT_MOVEMENT_STEAM_PCT")
	setDuration(&cfg.Movement.SteamWindow, "STRIKEBOT_MOVEMENT_STEAM_WINDOW")
	setInt(&cfg.Movement.SteamMinBooks, "STRIKEBOT_MOVEMENT_STEAM_MIN_BOOKS")

	// ── Arbitrage ──
	setBool(&cfg.Arbitrage.Enabled, "STRIKEBOT_ARBITRAGE_ENABLED")
	setFloat64(&cfg.Arbitrage.TotalStake, "STRIKEBOT_ARBITRAGE_TOTAL_STAKE")
	setFloat64(&cfg.Arbitrage.MinProfitPct, "STRIKEBOT_ARBITRAGE_MIN_PROFIT_PCT")
	setFloat64(&cfg.Arbitrage.HighConfidencePct, "STRIKEBOT_ARBITRAGE_HIGH_CONFIDENCE_PCT")
	setDuration(&cfg.Arbitrage.OpportunityTTL, "STRIKEBOT_ARBITRAGE_OPPORTUNITY_TTL")
	setBool(&cfg.Arbitrage.CrossMarket, "STRIKEBOT_ARBITRAGE_CROSS_MARKET")
	setStringSlice(&cfg.Arbitrage.SharpBooks, "STRIKEBOT_ARBITRAGE_SHARP_BOOKS")
	setStringSlice(&cfg.Arbitrage.ThinBooks, "STRIKEBOT_ARBITRAGE_THIN_BOOKS")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.SyncInterval, "STRIKEBOT_PIPELINE_SYNC_INTERVAL")
	setDuration(&cfg.Pipeline.CooldownInterval, "STRIKEBOT_PIPELINE_COOLDOWN_INTERVAL")
	setInt(&cfg.Pipeline.HistoryWindowDays, "STRIKEBOT_PIPELINE_HISTORY_WINDOW_DAYS")
	setBool(&cfg.Pipeline.ArchiveEnabled, "STRIKEBOT_PIPELINE_ARCHIVE_ENABLED")
	setBool(&cfg.Pipeline.ArchiveRawPayload, "STRIKEBOT_PIPELINE_ARCHIVE_RAW_PAYLOAD")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "STRIKEBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "STRIKEBOT_METRICS_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STRIKEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STRIKEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STRIKEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STRIKEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STRIKEBOT_MODE")
	setStr(&cfg.LogLevel, "STRIKEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
