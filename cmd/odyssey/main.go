package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&verifyCmd{}, "ledger")
	commander.Register(&triggerCmd{}, "jobs")
	commander.Register(&queueCmd{}, "jobs")

	flag.Parse()
	if flag.NArg() == 0 {
		os.Exit(int((&serveCmd{}).Execute(ctx, flag.CommandLine)))
	}
	os.Exit(int(commander.Execute(ctx)))
}

func setup(ctx context.Context) (*app.Config, *slog.Logger, *app.Components, subcommands.ExitStatus) {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return nil, nil, nil, subcommands.ExitUsageError
	}
	logger := app.NewLogger(cfg)
	comps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build ledger", slog.Any("error", err))
		return nil, nil, nil, subcommands.ExitFailure
	}
	return cfg, logger, comps, subcommands.ExitSuccess
}
