package app

import (
	"github.com/spf13/cobra"

	"github.com/parentsync/parentsync/internal/config"
	"github.com/parentsync/parentsync/internal/daemon"
	"github.com/parentsync/parentsync/internal/logger"
)

func init() { //nolint: gochecknoinits
	migrateCmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration directory")

	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the internal contact store schema",
	PreRun: func(_ *cobra.Command, _ []string) {
		if cfg, err = config.ReadConfig(configPath); err != nil {
			panic(err)
		}

		if err = logger.Init(cfg.Log); err != nil {
			panic(err)
		}
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return daemon.Migrate(&cfg)
	},
}
