// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/parentsync/parentsync/internal/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "parentsync",
	Short: "parentsync provisions LMS parent accounts from MIS contact records",
	Long: `parentsync reconciles parent contact records exported by a school MIS
with user accounts in a downstream LMS. Approved contacts are staged for the
LMS account sync, and the provisioning cycle links each materialized parent
account to its pupil accounts via role assignments.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
