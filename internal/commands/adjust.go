package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdjustCommand(configPath *string) *cobra.Command {
	var provider string
	var recordedBy string
	var reason string

	cmd := &cobra.Command{
		Use:   "adjust <date> <amount-minor>",
		Short: "Record an audited adjustment against a day",
		Long: "Record an audited adjustment in minor currency units. A positive\n" +
			"amount offsets negative variance. Closed days accept adjustments\n" +
			"without reopening.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			adj, err := e.engine.RecordAdjustment(cmd.Context(), args[0], provider, amount, reason, recordedBy)
			if err != nil {
				return err
			}
			fmt.Printf("Adjustment %s recorded: %s (%s)\n", adj.ID, formatMinor(adj.AmountMinor), adj.Reason)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "provider code (required)")
	_ = cmd.MarkFlagRequired("provider")
	cmd.Flags().StringVar(&recordedBy, "by", "", "operator recording the adjustment (required)")
	_ = cmd.MarkFlagRequired("by")
	cmd.Flags().StringVar(&reason, "reason", "", "adjustment reason (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}
