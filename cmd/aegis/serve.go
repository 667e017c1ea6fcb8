package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisai/aegis/pkg/api"
	"github.com/aegisai/aegis/pkg/config"
	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/orchestrator"
	"github.com/aegisai/aegis/pkg/runtime"
	"github.com/aegisai/aegis/pkg/slot"
	"github.com/aegisai/aegis/pkg/swarm"
	"github.com/aegisai/aegis/pkg/workspace"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Aegis daemon",
	Long: `Start the orchestrator daemon: the workspace store, the worker
swarm, the mission scheduler, and the HTTP control plane.

All mission state is held in memory; a restart forgets every mission.
Workspaces survive on disk and are re-registered at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")
		workers, _ := cmd.Flags().GetInt("workers")
		workspaceRoot, _ := cmd.Flags().GetString("workspace-root")
		logLevel, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if listen != "" {
			cfg.API.Listen = listen
		}
		if workers > 0 {
			cfg.Swarm.MaxWorkers = workers
		}
		if workspaceRoot != "" {
			cfg.Workspace.RootPath = workspaceRoot
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if jsonLogs {
			cfg.Log.JSON = true
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		logger := log.WithComponent("main")
		logger.Info().Str("version", Version).Msg("starting aegis daemon")

		store, err := workspace.NewStore(cfg.Workspace)
		if err != nil {
			return fmt.Errorf("failed to open workspace store: %w", err)
		}
		store.StartSweep()
		defer store.StopSweep()

		bus := events.NewBus()
		bus.Start()
		defer bus.Stop()

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}

		pool := swarm.New(cfg.Swarm, executor, bus)
		pool.Start()
		defer pool.Stop()

		orch := orchestrator.New(cfg.Orchestrator, cfg.Workspace, store, pool, bus)
		orch.Start()
		defer orch.Stop()

		server := api.NewServer(cfg.API.Listen, orch, pool, bus, Version)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("control plane failed: %w", err)
			}
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("control plane shutdown incomplete")
		}
		return nil
	},
}

// buildExecutor picks the slot strategy: simulated by default,
// containerised when configured and containerd is reachable.
func buildExecutor(cfg *config.Config) (slot.Executor, error) {
	if !cfg.Container.Enabled {
		return slot.NewSimulatedExecutor(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rt, err := runtime.NewRuntime(ctx, cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}
	return slot.NewContainerExecutor(rt), nil
}

func init() {
	serveCmd.Flags().String("config", "", "path to YAML config file")
	serveCmd.Flags().String("listen", "", "control plane listen address (overrides config)")
	serveCmd.Flags().Int("workers", 0, "worker slot count (overrides config)")
	serveCmd.Flags().String("workspace-root", "", "workspace root directory (overrides config)")
	serveCmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	serveCmd.Flags().Bool("json-logs", false, "emit JSON logs instead of console output")
}
