package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hblackburnRedev/SmartMeter/billing"
	"github.com/hblackburnRedev/SmartMeter/config"
	"github.com/hblackburnRedev/SmartMeter/directory"
	"github.com/hblackburnRedev/SmartMeter/logging"
	"github.com/hblackburnRedev/SmartMeter/observability"
	"github.com/hblackburnRedev/SmartMeter/server"
)

const flagServerConfig = "config"

// ServerCmd returns the command for starting the telemetry server.
func ServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the smart meter telemetry server",
		Long: `Start the smart meter telemetry server.

The server accepts authenticated WebSocket connections from meter clients,
registers first-time clients, prices submitted usage readings against the
configured rate table, records every reading in the per-client ledger, and
broadcasts simulated grid status alerts to all connected meters.

Example:
  smartmeter server --config /path/to/server.yaml
`,
		RunE: runServer,
	}

	cmd.Flags().String(flagServerConfig, "", "Path to server config file (required)")
	_ = cmd.MarkFlagRequired(flagServerConfig)

	return cmd
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Load config first (needed for logger configuration)
	configPath, _ := cmd.Flags().GetString(flagServerConfig)
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLoggerFromConfig(cfg.Logging)

	// Observability endpoints (metrics / pprof)
	if cfg.Metrics.Enabled || cfg.PProf.Enabled {
		obsServer := observability.NewServer(logger, cfg.Metrics, cfg.PProf)
		if err := obsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		defer func() { _ = obsServer.Stop() }()
	}

	if err := os.MkdirAll(cfg.ReadingsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create readings directory: %w", err)
	}

	// Wire the billing engine: load-once rate cache + append-only ledger.
	rates := billing.NewRateCache(logger, cfg.RateTablePath)
	ledger := billing.NewLedgerStore(logger, cfg.ReadingsDir)
	engine := billing.NewEngine(logger, rates, ledger)

	dir := directory.New(logger, cfg.ReadingsDir)
	registry := server.NewRegistry()

	srv := server.New(logger, cfg, registry, engine, dir)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Grid alert broadcaster runs alongside the accept loop, sharing only
	// the session registry and the shutdown context.
	if cfg.GridAlerts.Enabled {
		broadcaster := server.NewBroadcaster(logger, registry, cfg.GridAlerts)
		go logging.RecoverGoRoutine(logger, logging.ComponentBroadcaster, func(ctx context.Context) {
			broadcaster.Run(ctx)
		})(ctx)
	}

	logger.Info().
		Str(logging.FieldListenAddr, cfg.ListenAddr).
		Msg("smart meter telemetry server started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received, stopping server...")
	case <-ctx.Done():
	}

	cancel()
	_ = srv.Close()

	logger.Info().Msg("smart meter telemetry server stopped")
	return nil
}
