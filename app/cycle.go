package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/daemon"
	"github.com/parentsync/parentsync/internal/logger"
)

func init() { //nolint: gochecknoinits
	cycleCmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration directory")
	cycleCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Load approved contacts and report without provisioning")

	rootCmd.AddCommand(cycleCmd)
}

var (
	configPath string // Path to the configuration directory

	err    error
	dryRun bool

	cycleCmd = &cobra.Command{
		Use:   "cycle",
		Short: "Run one provisioning cycle for all approved contacts",
		PreRun: func(_ *cobra.Command, _ []string) {
			if cfg, err = config.ReadConfig(configPath); err != nil {
				panic(err)
			}

			if err = logger.Init(cfg.Log); err != nil {
				panic(err)
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(&cfg)
			if err != nil {
				return err
			}

			return d.RunCycle(ctx, dryRun)
		},
	}
)
