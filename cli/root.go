// Package cli is the datavault command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"datavault/config"
	"datavault/logging"
)

var configPath string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "datavault",
		Short: "DataVault - an offline, encrypted note store.",
		Long: `DataVault keeps title/content notes in a local SQLite database with both
fields encrypted under a secret held in the system keyring.

Usage:
  datavault <command> [flags]

Run 'datavault help <command>' for more details on a specific command.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(configPath); err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			logging.Setup(config.AppConfig.Log.Level, config.AppConfig.Log.Format)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")

	root.AddCommand(
		newServeCmd(),
		newListCmd(),
		newAddCmd(),
		newShowCmd(),
		newEditCmd(),
		newRemoveCmd(),
		newExportCmd(),
		newImportCmd(),
		newMigrateCmd(),
		newDoctorCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
