package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARENAD_* environment variable overrides, and
// returns the final Config. The caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARENAD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "ARENAD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ARENAD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ARENAD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ARENAD_DATABASE_NAME")
	setStr(&cfg.Database.User, "ARENAD_DATABASE_USER")
	setStr(&cfg.Database.Password, "ARENAD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ARENAD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "ARENAD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ARENAD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ARENAD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARENAD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARENAD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARENAD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARENAD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARENAD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARENAD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARENAD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARENAD_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARENAD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARENAD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARENAD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARENAD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARENAD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "ARENAD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARENAD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARENAD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARENAD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARENAD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARENAD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARENAD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARENAD_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
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
