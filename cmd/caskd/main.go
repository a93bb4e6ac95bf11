// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cask-engine/cask/lib/clock"
	"github.com/cask-engine/cask/lib/config"
	"github.com/cask-engine/cask/lib/engine"
	"github.com/cask-engine/cask/lib/httpapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var listenAddress string
	var dataDir string
	var sweepInterval string

	flagSet := pflag.NewFlagSet("caskd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $CASK_CONFIG, else built-in defaults)")
	flagSet.StringVar(&listenAddress, "listen", "", "TCP listen address, overrides the config file")
	flagSet.StringVar(&dataDir, "data-dir", "", "base data directory, overrides the config file")
	flagSet.StringVar(&sweepInterval, "sweep-interval", "", "retention sweep interval (e.g. 60s, 5m), overrides the config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddress != "" {
		cfg.Server.ListenAddress = listenAddress
	}
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
		cfg.Paths.Database = dataDir + "/cask.db"
		cfg.Paths.Payloads = dataDir + "/payloads"
	}
	if sweepInterval != "" {
		cfg.Sweep.Interval = sweepInterval
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	systemClock := clock.Real()

	eng, err := engine.Open(engine.Config{
		DatabasePath: cfg.Paths.Database,
		PayloadRoot:  cfg.Paths.Payloads,
		PoolSize:     cfg.Engine.PoolSize,
		PutAttempts:  cfg.Engine.PutAttempts,
		Clock:        systemClock,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	// The pool closes after the HTTP server has drained and the
	// sweeper has stopped, so no request sees a closed engine.
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("closing engine", "error", err)
		}
	}()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		eng.RunSweeper(ctx, cfg.SweepInterval())
	}()

	api := httpapi.NewAPI(httpapi.APIConfig{
		Engine: eng,
		Clock:  systemClock,
		Logger: logger,
	})
	server := httpapi.NewServer(httpapi.ServerConfig{
		Address:         cfg.Server.ListenAddress,
		Handler:         api.Routes(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          logger,
	})

	logger.Info("caskd running",
		"listen", cfg.Server.ListenAddress,
		"database", cfg.Paths.Database,
		"payloads", cfg.Paths.Payloads,
		"sweep_interval", cfg.SweepInterval().String(),
	)

	err = server.Serve(ctx)
	<-sweepDone
	return err
}

// loadConfig resolves the config source: an explicit --config path
// wins, otherwise CASK_CONFIG, otherwise built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
