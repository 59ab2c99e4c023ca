// Package main implements the flightrelay entry point. It reads an SBS-1
// BaseStation feed and publishes aircraft positions to an MQTT or NATS
// broker as retained messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/flightrelay/config"
	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "flightrelay"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cli, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}
	if cli.ShowHelp {
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("Starting flightrelay", "build_time", BuildTime, "config", cfg.String())

	relay, err := service.New(service.Dependencies{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}

	return runWithSignalHandling(context.Background(), relay, cfg.ShutdownTimeout, logger)
}

func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader(config.WithEnvFile(cli.EnvFile))
	cfg, err := loader.Load(cli.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cli.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runWithSignalHandling runs the relay until SIGINT or SIGTERM. Draining the
// pipeline and closing the broker each get shutdownTimeout.
func runWithSignalHandling(ctx context.Context, relay *service.Relay, shutdownTimeout time.Duration, logger *slog.Logger) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	done := make(chan error, 1)
	go func() { done <- relay.Run(signalCtx) }()

	select {
	case err := <-done:
		return err
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("flightrelay shutdown complete")
		return nil
	case <-time.After(2 * shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %v", 2*shutdownTimeout)
	}
}
