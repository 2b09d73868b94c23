package app

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"600"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN selects PostgreSQL storage. Empty runs the ledger in memory.
	PGDSN        string        `envconfig:"PG_DSN"`
	PGMaxConns   int32         `envconfig:"PG_MAX_CONNS" default:"20"`
	PGConnMaxAge time.Duration `envconfig:"PG_CONN_MAX_LIFETIME" default:"1h"`
	PGMigrate    bool          `envconfig:"PG_MIGRATE" default:"true"`

	// RedisAddr enables distributed locks and the job queue. Empty falls back
	// to process-local locks.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	PostingRetries          int           `envconfig:"LEDGER_POSTING_RETRIES" default:"5"`
	PostingRateLimit        int           `envconfig:"LEDGER_POSTING_RATE_LIMIT" default:"120"`
	LockTTL                 time.Duration `envconfig:"LEDGER_LOCK_TTL" default:"2m"`
	RetainedEarningsAccount string        `envconfig:"RETAINED_EARNINGS_ACCOUNT"`
	CashCategories          []string      `envconfig:"CASH_CATEGORIES" default:"CASH"`

	DepreciationConcurrency int    `envconfig:"DEPRECIATION_CONCURRENCY" default:"4"`
	DepreciationCron        string `envconfig:"DEPRECIATION_CRON" default:"0 2 1 * *"`
	IntegrityCron           string `envconfig:"INTEGRITY_CRON" default:"30 3 * * *"`
	WorkerConcurrency       int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr       string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PostingRetries < 1 {
		return errors.New("LEDGER_POSTING_RETRIES must be at least 1")
	}
	if c.LockTTL <= 0 {
		return errors.New("LEDGER_LOCK_TTL must be positive")
	}
	if c.DepreciationConcurrency < 1 {
		return errors.New("DEPRECIATION_CONCURRENCY must be at least 1")
	}
	cats := c.CashCategories[:0]
	for _, code := range c.CashCategories {
		if code = strings.TrimSpace(code); code != "" {
			cats = append(cats, code)
		}
	}
	c.CashCategories = cats
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// InMemory reports whether the ledger runs without PostgreSQL.
func (c *Config) InMemory() bool {
	return c == nil || strings.TrimSpace(c.PGDSN) == ""
}
