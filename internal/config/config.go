package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SP_DB_MAX_CONNS" default:"8"`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	TelegramAPIBase   string        `envconfig:"TELEGRAM_API_BASE" default:"https://api.telegram.org"`
	TelegramBotToken  string        `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	TelegramChannelID string        `envconfig:"TELEGRAM_CHANNEL_ID" required:"true"`
	SourcePageSize    int           `envconfig:"SOURCE_PAGE_SIZE" default:"50"`
	SourcePollTimeout time.Duration `envconfig:"SOURCE_POLL_TIMEOUT" default:"30s"`

	CatalogBaseURL        string        `envconfig:"CATALOG_BASE_URL" default:"https://api.themoviedb.org/3"`
	CatalogImageBaseURL   string        `envconfig:"CATALOG_IMAGE_BASE_URL" default:"https://image.tmdb.org/t/p/w500"`
	CatalogAPIKeys        string        `envconfig:"CATALOG_API_KEYS" required:"true"`
	CatalogLanguage       string        `envconfig:"CATALOG_LANGUAGE" default:"en-US"`
	CatalogRatePerSecond  float64       `envconfig:"CATALOG_RATE_PER_SECOND" default:"4"`
	CatalogMatchThreshold int           `envconfig:"CATALOG_MATCH_THRESHOLD" default:"80"`
	ResolveCacheTTL       time.Duration `envconfig:"RESOLVE_CACHE_TTL" default:"168h"`

	PipelineName   string        `envconfig:"PIPELINE_NAME" default:"episode-sync"`
	LockTTL        time.Duration `envconfig:"PIPELINE_LOCK_TTL" default:"10m"`
	RunRetryMin    time.Duration `envconfig:"RUN_RETRY_MIN" default:"60s"`
	RunRetryMax    time.Duration `envconfig:"RUN_RETRY_MAX" default:"120s"`
	RunMaxAttempts int           `envconfig:"RUN_MAX_ATTEMPTS" default:"3"`
	ScheduleCron   string        `envconfig:"SCHEDULE_CRON" default:"*/15 * * * *"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SP_DB_MIN_CONNS (%d) cannot exceed SP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if strings.TrimSpace(c.TelegramChannelID) == "" {
		return fmt.Errorf("TELEGRAM_CHANNEL_ID is required")
	}
	if c.SourcePageSize < 1 {
		return fmt.Errorf("SOURCE_PAGE_SIZE must be >= 1")
	}
	if len(c.CatalogAPIKeyList()) == 0 {
		return fmt.Errorf("CATALOG_API_KEYS must contain at least one key")
	}
	if c.CatalogRatePerSecond <= 0 {
		return fmt.Errorf("CATALOG_RATE_PER_SECOND must be > 0")
	}
	if c.CatalogMatchThreshold < 0 || c.CatalogMatchThreshold > 100 {
		return fmt.Errorf("CATALOG_MATCH_THRESHOLD must be between 0 and 100")
	}
	if c.ResolveCacheTTL < 0 {
		return fmt.Errorf("RESOLVE_CACHE_TTL must be >= 0")
	}
	if strings.TrimSpace(c.PipelineName) == "" {
		return fmt.Errorf("PIPELINE_NAME is required")
	}
	if c.LockTTL < time.Minute {
		return fmt.Errorf("PIPELINE_LOCK_TTL must be at least 1m")
	}
	if c.RunRetryMin <= 0 || c.RunRetryMax < c.RunRetryMin {
		return fmt.Errorf("RUN_RETRY_MIN/RUN_RETRY_MAX must satisfy 0 < min <= max")
	}
	if c.RunMaxAttempts < 1 {
		return fmt.Errorf("RUN_MAX_ATTEMPTS must be >= 1")
	}
	return nil
}

// CatalogAPIKeyList splits CATALOG_API_KEYS into an ordered, de-duplicated
// key set. Order is preserved because it drives rotation order.
func (c *Config) CatalogAPIKeyList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CatalogAPIKeys, ",")
	keys := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		key := strings.TrimSpace(part)
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
