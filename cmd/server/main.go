// Package main is the entry point for logdash.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fidde/log_dashboard/internal/api"
	"github.com/fidde/log_dashboard/internal/config"
	"github.com/fidde/log_dashboard/internal/engine"
	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/registry"
	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/internal/storage/backends"
	"github.com/fidde/log_dashboard/internal/tail"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "logdash",
		Short:        "Browse, search and tail log collections",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: logdash.yaml/.yml/.toml/.json in the working directory)")

	rootCmd.AddCommand(
		serveCmd(),
		tailCmd(),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	backend    storage.Backend
	registry   *registry.Registry
	normalizer *normalize.Normalizer
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Resolve(path)
}

func setup(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, source, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := cfg.NewLogger(os.Stderr)
	slog.SetDefault(log)
	if source != "" {
		log.Info("loaded config", "file", source)
	}

	backend, err := backends.Open(ctx, cfg.StorageConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	defs, err := cfg.Definitions()
	if err != nil {
		backend.Close()
		return nil, err
	}
	reg, err := registry.New(backend, defs)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}

	return &app{
		cfg:        cfg,
		log:        log,
		backend:    backend,
		registry:   reg,
		normalizer: normalize.New(log),
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		a.log.Error("error closing storage", "error", err)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Address to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	eng := engine.New(a.registry, a.normalizer, engine.Options{
		MaxLimit: a.cfg.Query.MaxLimit,
		Logger:   a.log,
	})
	apiServer := api.NewServer(addr, eng, a.registry, a.normalizer, api.Options{
		Realtime:     a.cfg.Realtime.Enabled,
		Tail:         a.cfg.TailConfig(),
		DefaultLimit: a.cfg.Query.DefaultLimit,
		StaticDir:    a.cfg.StaticDir,
		Logger:       a.log,
	})
	api.Version = version

	errChan := make(chan error, 1)
	go func() {
		a.log.Info("starting API server", "addr", addr, "backend", a.cfg.Backend,
			"categories", a.registry.Names(), "realtime", a.cfg.Realtime.Enabled)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		a.log.Info("received signal, shutting down", "signal", sig.String())
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		a.log.Error("error shutting down API server", "error", err)
	}

	a.log.Info("shutdown complete")
	return nil
}

func tailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print new records as NDJSON events until interrupted",
		RunE:  runTail,
	}
	cmd.Flags().StringP("category", "c", "", "Category to tail (default: all)")
	return cmd
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	category, _ := cmd.Flags().GetString("category")
	sess, err := tail.NewSession(a.registry, category, a.normalizer, a.cfg.TailConfig(), a.log)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return sess.Run(ctx, func(_ context.Context, b tail.Batch) error {
		return enc.Encode(tail.NewEvent(b))
	})
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config and print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if source == "" {
				source = "(defaults)"
			}
			fmt.Fprintf(out, "Valid: %s\n", source)
			fmt.Fprintf(out, "  addr: %s\n", cfg.Addr)
			fmt.Fprintf(out, "  backend: %s\n", cfg.Backend)
			fmt.Fprintf(out, "  realtime: %t (every %s, batch %d)\n",
				cfg.Realtime.Enabled, cfg.Realtime.Interval.Duration(), cfg.Realtime.BatchSize)
			fmt.Fprintf(out, "  categories: %d configured\n", len(cfg.Categories))
			for _, c := range cfg.Categories {
				strategy := c.Normalize
				if strategy == "" {
					strategy = normalize.None.String()
				}
				fmt.Fprintf(out, "    - %s -> %s (%s)\n", c.Name, c.Collection, strategy)
			}
			return nil
		},
	}
}
