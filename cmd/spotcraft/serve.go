package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/spotcraft/internal/app"
	"github.com/MrWong99/spotcraft/internal/config"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, watch, stdout, stderr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload log level, script and provider settings when the file changes")
	return cmd
}

func runServe(ctx context.Context, configPath string, watch bool, stdout, stderr io.Writer) error {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found: copy configs/example.yaml to get started", configPath)
		}
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("spotcraft starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)
	printStartupSummary(stdout, cfg)

	application, err := app.New(ctx, cfg, app.WithLevelVar(level))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	if watch {
		w, err := config.NewWatcher(configPath, application.Reload)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        spotcraft  startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printRow(w, "Secrets", fmt.Sprint(cfg.Secrets.Sources))
	printRow(w, "Durations", fmt.Sprint(cfg.Script.Durations))
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	metrics := cfg.Server.MetricsAddr
	if metrics == "" {
		metrics = "(api listener)"
	}
	printRow(w, "Metrics addr", metrics)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", label, value)
}
