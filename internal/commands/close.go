package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daybook-dev/daybook/internal/ledger"
)

func newCloseCommand(configPath *string) *cobra.Command {
	var provider string
	var closedBy string

	cmd := &cobra.Command{
		Use:   "close <date>",
		Short: "Close a business day after all guards pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			day, err := e.engine.RequestDayClose(cmd.Context(), args[0], provider, closedBy)
			if err != nil {
				var blocked *ledger.CloseBlockedError
				if errors.As(err, &blocked) {
					fmt.Printf("Close blocked for %s:\n", blocked.Key)
					for _, reason := range blocked.Reasons {
						fmt.Printf("  - %s\n", reason)
					}
					return errors.New("day close blocked")
				}
				var commit *ledger.CommitError
				if errors.As(err, &commit) {
					return fmt.Errorf("close commit failed, day left at pending_close; rerun to retry: %w", err)
				}
				return err
			}

			fmt.Printf("Day %s closed by %s.\n", day.Key, day.ClosedBy)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "provider code (required)")
	_ = cmd.MarkFlagRequired("provider")
	cmd.Flags().StringVar(&closedBy, "by", "", "operator closing the day (required)")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}
