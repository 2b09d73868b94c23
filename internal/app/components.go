package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	accountinghttp "github.com/odyssey-erp/odyssey-ledger/internal/accounting/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/pgstore"
)

type auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Components is the assembled ledger engine shared by the API server, the
// worker and the CLI.
type Components struct {
	Store     store.Store
	Accounts  *accounts.Service
	Poster    *ledger.Poster
	Periods   *periods.Manager
	Inventory *inventory.Service
	Assets    *assets.Scheduler
	Reports   *reports.Builder
	Metrics   *observability.Metrics

	pool   *pgxpool.Pool
	pg     *pgstore.Store
	redis  *redis.Client
	logger *slog.Logger
}

// Build connects the configured backends and wires the engine services.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		cfg = &Config{PostingRetries: 5, DepreciationConcurrency: 1}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{Metrics: observability.NewMetrics(), logger: logger}

	var audit auditor = shared.NewLogAuditor(logger)
	if cfg.InMemory() {
		logger.Warn("PG_DSN not set, ledger state is kept in memory")
		c.Store = memstore.New()
	} else {
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnMaxAge})
		if err != nil {
			return nil, err
		}
		c.pool = pool
		c.pg = pgstore.New(pool)
		if cfg.PGMigrate {
			if err := c.pg.Migrate(ctx); err != nil {
				c.Close()
				return nil, err
			}
		}
		c.Store = c.pg
		audit = shared.NewAuditLogger(pool)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.redis = client
		locker = lock.NewRedisLocker(client)
	} else {
		logger.Warn("REDIS_ADDR not set, period and asset locks are process-local")
	}

	c.Poster = ledger.NewPoster(c.Store, audit, logger, ledger.Config{MaxAttempts: cfg.PostingRetries})
	c.Poster.WithRecorder(c.Metrics)
	c.Accounts = accounts.NewService(c.Store, audit, logger)
	c.Periods = periods.NewManager(c.Store, c.Poster, locker, audit, logger, periods.Config{
		LockTTL:              cfg.LockTTL,
		RetainedEarningsCode: cfg.RetainedEarningsAccount,
	})
	c.Periods.WithRecorder(c.Metrics)
	c.Inventory = inventory.NewService(c.Store, c.Poster, audit, logger, inventory.ServiceConfig{MaxAttempts: cfg.PostingRetries})
	c.Assets = assets.NewScheduler(c.Store, c.Poster, locker, audit, logger, assets.Config{
		Concurrency: cfg.DepreciationConcurrency,
		LockTTL:     cfg.LockTTL,
		MaxAttempts: cfg.PostingRetries,
	})
	c.Reports = reports.NewBuilder(c.Store, reports.Config{CashCategories: cfg.CashCategories})
	return c, nil
}

// LedgerHandler exposes the engine over HTTP.
func (c *Components) LedgerHandler(cfg *Config) *accountinghttp.Handler {
	var hcfg accountinghttp.Config
	if cfg != nil {
		hcfg.PostingRateLimit = cfg.PostingRateLimit
	}
	return accountinghttp.NewHandler(c.logger, accountinghttp.Services{
		Accounts:  c.Accounts,
		Ledger:    c.Poster,
		Periods:   c.Periods,
		Inventory: c.Inventory,
		Assets:    c.Assets,
		Reports:   c.Reports,
		Reader:    c.Store,
	}, hcfg)
}

// Ping reports backend reachability for /healthz.
func (c *Components) Ping(ctx context.Context) error {
	if c.pg != nil {
		if err := c.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases backend connections.
func (c *Components) Close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
