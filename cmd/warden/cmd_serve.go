package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"warden/pkg/config"
	"warden/pkg/engine"
)

// newServeCmd creates the "warden serve" subcommand: the engine daemon.
func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the warden engine",
		Long:  "Starts the engine daemon: opens the database, serves the control\nsocket, and applies emotional decay until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(paths.Home, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", paths.Home, err)
			}
			if err := os.MkdirAll(paths.Workspace, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", paths.Workspace, err)
			}

			var cfg config.Config
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load(paths.Home)
			}
			if err != nil {
				return err
			}
			// Path resolution wins over file values so one home directory
			// stays self-contained.
			cfg.SocketPath = paths.SocketPath
			cfg.DBPath = paths.DBPath
			cfg.Workspace = paths.Workspace

			decayInterval, err := cfg.DecayIntervalDuration()
			if err != nil {
				return err
			}
			actionTimeout, err := cfg.ActionTimeoutDuration()
			if err != nil {
				return err
			}
			tuning, err := engine.TuningFromConfig(cfg)
			if err != nil {
				return err
			}

			e, err := engine.New(engine.Config{
				ActorID:       cfg.ActorID,
				SocketPath:    cfg.SocketPath,
				DBPath:        cfg.DBPath,
				Workspace:     cfg.Workspace,
				DecayInterval: decayInterval,
				ActionTimeout: actionTimeout,
				EventBuffer:   cfg.EventBuffer,
				Tuning:        tuning,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if e.WatchConfig(ctx.Done(), paths.Home) {
				log.Printf("warden: watching %s for config changes", paths.Home)
			}

			log.Printf("warden: serving %s (db %s)", cfg.SocketPath, cfg.DBPath)
			return e.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "explicit config file (default: $WARDEN_HOME/warden.toml)")
	return cmd
}
