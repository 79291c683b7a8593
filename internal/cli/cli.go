// ============================================================================
// Decision Engine CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra commands for offline training and online planning
//
// Command Structure:
//   planner                        # Root command
//   ├── train                      # Policy iteration, save the policy
//   ├── run                        # Load policy, finite-horizon DP, print plan
//   ├── batch                      # Many plan scenarios through the worker pool
//   ├── serve                      # gRPC Planner service (+ /metrics)
//   ├── show                       # Print a stored policy
//   └── --config, -c               # Config file (default: configs/default.yaml)
//
// Configuration:
//   Loaded once per command and passed into constructors. A missing file at
//   the default path falls back to built-in defaults. Flags override the
//   matching config fields only when set explicitly.
//
// Output:
//   Tables go to stdout, logs to stderr.
//
// Examples:
//   ./planner train
//   ./planner run --horizon 8 --jobs 3 --seed 7
//   ./planner batch -f configs/scenarios.yaml
//   ./planner serve --port 50051
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/decision-engine/internal/config"
	"github.com/ChuLiYu/decision-engine/internal/metrics"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/telemetry"
)

// Version is reported by --version.
var Version = "dev"

var (
	configFile string
	logLevel   string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Dual-horizon decision engine",
		Long: `planner learns a stationary policy offline with policy iteration and
plans finite horizons online with Monte Carlo backed dynamic programming,
biased by the stored policy.`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(buildTrainCommand())
	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildBatchCommand())
	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildShowCommand())

	return rootCmd
}

// ============================================================================
// Runtime wiring
// ============================================================================

// app holds what one command invocation needs. The store and planner are
// opened lazily so remote commands never touch local storage.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector

	store   policystore.Store
	planner *planner.Planner

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	return &app{
		cfg:             cfg,
		logger:          logger,
		registry:        registry,
		metrics:         metrics.NewCollector(registry),
		shutdownTracing: shutdown,
	}, nil
}

func (a *app) openPlanner() (*planner.Planner, error) {
	if a.planner != nil {
		return a.planner, nil
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	p, err := planner.New(store, planner.OptionsFromConfig(a.cfg),
		planner.WithMetrics(a.metrics),
		planner.WithLogger(a.logger),
		planner.WithTracer(telemetry.Tracer()),
	)
	if err != nil {
		return nil, err
	}
	a.planner = p
	return p, nil
}

func (a *app) openStore() (policystore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := openStore(a.cfg.Store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy store: %w", err)
	}
	a.store = store
	return store, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (policystore.Store, error) {
	switch cfg.Backend {
	case "badger":
		return policystore.OpenBadgerStore(policystore.BadgerConfig{
			Path:       cfg.BadgerPath,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
			Logger:     logger,
		}, policystore.WithLogger(logger))
	case "json", "":
		return policystore.NewJSONStore(cfg.Dir, policystore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}

// withApp runs fn with a fresh app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, out io.Writer) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a, cmd.OutOrStdout())
}

// policyFlags selects a stored policy; unset flags fall back to the policy section.
type policyFlags struct {
	tenant  string
	key     string
	version int
}

func (f *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant id (default from config)")
	cmd.Flags().StringVar(&f.key, "key", "", "policy key (default from config)")
	cmd.Flags().IntVar(&f.version, "policy-version", 0, "policy version, 0 for latest (default from config)")
}

func (f *policyFlags) ref(cfg config.Config, cmd *cobra.Command) policystore.Ref {
	ref := policystore.Ref{
		TenantID: cfg.Policy.TenantID,
		Key:      cfg.Policy.Key,
		Version:  cfg.Policy.Version,
	}
	if cmd.Flags().Changed("tenant") {
		ref.TenantID = f.tenant
	}
	if cmd.Flags().Changed("key") {
		ref.Key = f.key
	}
	if cmd.Flags().Changed("policy-version") {
		ref.Version = f.version
	}
	return ref
}
