// Package commands implements the daybook CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daybook-dev/daybook/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "daybook",
		Short:   "Daily financial reconciliation for provider settlements",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "daybook.yaml", "path to config file")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newImportCommand(&configPath))
	rootCmd.AddCommand(newRunCommand(&configPath))
	rootCmd.AddCommand(newStatusCommand(&configPath))
	rootCmd.AddCommand(newCloseCommand(&configPath))
	rootCmd.AddCommand(newResolveCommand(&configPath))
	rootCmd.AddCommand(newAdjustCommand(&configPath))
	rootCmd.AddCommand(newArtifactsCommand(&configPath))

	return rootCmd
}
