package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"pagebuilder/internal/app"
	"pagebuilder/internal/config"
	"pagebuilder/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("PB_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	runErr := a.Run(ctx)

	// Fresh context: ctx is already cancelled on a signal.
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Editor.SaveTimeout)
	defer done()
	a.Shutdown(shutdownCtx)

	return runErr
}
