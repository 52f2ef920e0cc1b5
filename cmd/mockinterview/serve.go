package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mockinterview/internal/app"
	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/observe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interview over a websocket with health and metrics endpoints",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	logger, logFile := newLogger(cfg.Server, level, false)
	defer logFile.Close()
	slog.SetDefault(logger)

	slog.Info("mockinterview starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "mockinterview",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	comp, err := buildCompletion(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	var application *app.App
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		if application != nil {
			application.OnConfigChange(old, new)
		}
	})
	if err != nil {
		slog.Warn("config hot-reload disabled", "err", err)
		watcher = nil
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithLevel(level),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithProviderName(comp.name),
	}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	for _, c := range comp.checkers {
		opts = append(opts, app.WithHealthChecker(c))
	}

	application, err = app.New(cfg, comp.provider, opts...)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	printStartupSummary(os.Stdout, cfg, comp.name)

	if err := application.Run(ctx); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

func printStartupSummary(w io.Writer, cfg *config.Config, providers string) {
	fmt.Fprintln(w, "+---------------------------------------------+")
	fmt.Fprintln(w, "|        mockinterview startup summary        |")
	fmt.Fprintln(w, "+---------------------------------------------+")
	printRow(w, "LLM", cfg.Providers.LLM.Name+" / "+cfg.Providers.LLM.Model)
	if len(cfg.Providers.LLMFallbacks) > 0 {
		printRow(w, "Chain", providers)
	}
	printRow(w, "Questions", fmt.Sprint(cfg.Interview.Questions))
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow(w, "TLS", "enabled")
	}
	fmt.Fprintln(w, "+---------------------------------------------+")
}

func printRow(w io.Writer, key, value string) {
	if len(value) > 27 {
		value = value[:24] + "..."
	}
	fmt.Fprintf(w, "|  %-12s : %-27s |\n", key, value)
}
