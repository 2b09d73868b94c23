package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the ledger HTTP API (default)" }
func (*serveCmd) Usage() string {
	return `odyssey serve

  Serves the ledger API under /api/v1 with /healthz, /metrics and /jobs.
  Configuration is read from the environment.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, comps, status := setup(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer comps.Close()

	var jobHandler *jobs.Handler
	if cfg.RedisAddr != "" {
		inspector := asynq.NewInspector(redisOpts(cfg))
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Ledger:     comps.LedgerHandler(cfg),
		JobHandler: jobHandler,
		Metrics:    comps.Metrics,
		Health:     comps.Ping,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	var failed atomic.Bool
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("in_memory", cfg.InMemory()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			failed.Store(true)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	if failed.Load() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type verifyCmd struct {
	json     bool
	accounts string
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "recompute running balances and report drift" }
func (*verifyCmd) Usage() string {
	return `odyssey verify [-json] [-accounts 1000,2000]

  Replays every ledger row and checks stored running balances and the
  debit/credit totals. Exits 10 when mismatches are found.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print the summary as JSON")
	f.StringVar(&c.accounts, "accounts", "", "comma separated account codes to verify (default all)")
}

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	_, _, comps, status := setup(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer comps.Close()

	var codes []string
	if c.accounts != "" {
		codes = strings.Split(c.accounts, ",")
	}
	return subcommands.ExitStatus(cli.NewLedgerCLI(comps.Poster).VerifyCommand(ctx, cli.VerifyOptions{
		Accounts:   codes,
		JSONOutput: c.json,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}))
}

type triggerCmd struct {
	period string
}

func (*triggerCmd) Name() string     { return "trigger" }
func (*triggerCmd) Synopsis() string { return "enqueue a background job" }
func (*triggerCmd) Usage() string {
	return fmt.Sprintf(`odyssey trigger [-period 2025-03] <job>

  Enqueues a job on the worker queue. Supported jobs: %s, %s.
  -period selects the depreciation month; without it the worker runs the
  previous month. Requires REDIS_ADDR.
`, jobs.TaskDepreciationRun, jobs.TaskLedgerIntegrity)
}

func (c *triggerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "", "depreciation month as YYYY-MM")
}

func (c *triggerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "trigger: exactly one job name is required")
		return subcommands.ExitUsageError
	}
	var opts cli.TriggerOptions
	if c.period != "" {
		month, err := time.Parse("2006-01", c.period)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trigger: invalid -period %q\n", c.period)
			return subcommands.ExitUsageError
		}
		opts.PeriodEnd = month
	}
	jc, status := openJobs("trigger")
	if status != subcommands.ExitSuccess {
		return status
	}
	defer func() { _ = jc.Close() }()

	info, err := jc.Trigger(ctx, f.Arg(0), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trigger: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return subcommands.ExitSuccess
}

type queueCmd struct {
	scheduled int
}

func (*queueCmd) Name() string     { return "queue" }
func (*queueCmd) Synopsis() string { return "show worker queue state" }
func (*queueCmd) Usage() string {
	return `odyssey queue [-scheduled N]

  Prints pending, active, scheduled and retry counts for the default queue and
  lists the next scheduled tasks. Requires REDIS_ADDR.
`
}

func (c *queueCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.scheduled, "scheduled", 10, "number of scheduled tasks to list")
}

func (c *queueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	jc, status := openJobs("queue")
	if status != subcommands.ExitSuccess {
		return status
	}
	defer func() { _ = jc.Close() }()

	stats, err := jc.InspectQueue(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "queue: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)

	tasks, err := jc.ListScheduled(ctx, c.scheduled)
	if err != nil {
		fmt.Fprintf(os.Stderr, "queue: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, t := range tasks {
		fmt.Fprintf(os.Stdout, "  %s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
	}
	return subcommands.ExitSuccess
}

func openJobs(cmd string) (*cli.JobsCLI, subcommands.ExitStatus) {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return nil, subcommands.ExitUsageError
	}
	if cfg.RedisAddr == "" {
		fmt.Fprintf(os.Stderr, "%s: REDIS_ADDR is not set\n", cmd)
		return nil, subcommands.ExitUsageError
	}
	jc, err := cli.NewJobsCLI(redisOpts(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs client: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	return jc, subcommands.ExitSuccess
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
