package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nstogner/roster/pkg/config"
	"github.com/nstogner/roster/pkg/controller"
	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/logging"
	"github.com/nstogner/roster/pkg/model"
	"github.com/nstogner/roster/pkg/model/breaker"
	"github.com/nstogner/roster/pkg/model/gemini"
	"github.com/nstogner/roster/pkg/server"
	"github.com/nstogner/roster/pkg/store/sqlite"
	"github.com/nstogner/roster/pkg/tracing"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "roster",
		Short:         "Natural-language command and query service for user records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./roster.yaml)")
	root.PersistentFlags().String("db", "", "SQLite database path")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	v.BindPFlag("db_path", root.PersistentFlags().Lookup("db"))
	v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cfgFile, serveCmd)
		},
	}
	serve.Flags().String("addr", "", "listen address")
	serve.Flags().String("extraction", "", "filter extraction mode (lexical, model)")
	v.BindPFlag("addr", serve.Flags().Lookup("addr"))
	v.BindPFlag("extraction", serve.Flags().Lookup("extraction"))

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cfgFile, migrateCmd)
		},
	}

	root.AddCommand(serve, migrate)
	return root
}

// run loads configuration, sets up logging and hands off to fn. Failures are
// logged here so that they use the configured handler.
func run(ctx context.Context, v *viper.Viper, cfgFile string, fn func(context.Context, *config.Config) error) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "roster:", err)
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "roster:", err)
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := fn(ctx, cfg); err != nil {
		slog.Error("Command failed", "error", err)
		return err
	}
	return nil
}

func openStore(cfg *config.Config) (*sqlite.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return sqlite.New(cfg.DBPath)
}

func migrateCmd(_ context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()
	slog.Info("Database ready", "path", cfg.DBPath)
	return nil
}

func serveCmd(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// Initialize store.
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()

	// Initialize model provider. A missing key is not fatal: chat endpoints
	// answer 503 until the service is restarted with one.
	var provider model.Provider
	gp, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
	})
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		slog.Warn("Model gateway not configured, chat is disabled", "error", err)
	case err != nil:
		return fmt.Errorf("initializing Gemini provider: %w", err)
	default:
		provider = breaker.New(gp, cfg.Breaker, slog.Default())
	}

	ctrl := controller.New(store, provider, controller.OptionsFrom(cfg), slog.Default())
	srv := server.New(store, ctrl, slog.Default())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Addr) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
