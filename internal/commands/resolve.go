package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCommand(configPath *string) *cobra.Command {
	var resolvedBy string
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <exception-id>",
		Short: "Mark an exception as resolved",
		Long: "Mark an exception as resolved with an explanatory note. Resolution\n" +
			"clears the close guard but never changes recorded variance; use\n" +
			"'daybook adjust' for approved write-offs.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.engine.ResolveException(cmd.Context(), args[0], resolvedBy, note); err != nil {
				return err
			}
			fmt.Printf("Exception %s resolved by %s.\n", args[0], resolvedBy)
			return nil
		},
	}

	cmd.Flags().StringVar(&resolvedBy, "by", "", "operator resolving the exception (required)")
	_ = cmd.MarkFlagRequired("by")
	cmd.Flags().StringVar(&note, "note", "", "resolution note (required)")
	_ = cmd.MarkFlagRequired("note")

	return cmd
}
