package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newArtifactsCommand(configPath *string) *cobra.Command {
	var provider string
	var reports bool
	var backup bool

	cmd := &cobra.Command{
		Use:   "artifacts <date>",
		Short: "Record report and backup artifact flags for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.engine.SetArtifacts(cmd.Context(), args[0], provider, reports, backup); err != nil {
				return err
			}
			fmt.Printf("Artifacts for %s/%s: reports=%v backup=%v\n", args[0], provider, reports, backup)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "provider code (required)")
	_ = cmd.MarkFlagRequired("provider")
	cmd.Flags().BoolVar(&reports, "reports", false, "daily reports generated")
	cmd.Flags().BoolVar(&backup, "backup", false, "backup completed")

	return cmd
}
