package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(configPath *string) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "status <date>",
		Short: "Show a day's reconciliation summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			day, err := e.engine.Day(ctx, args[0], provider)
			if err != nil {
				return err
			}
			if day == nil {
				fmt.Printf("Day %s/%s has not been reconciled.\n", args[0], provider)
				return nil
			}

			fmt.Printf("Day %s  [%s]\n", day.Key, day.State)
			fmt.Printf("  run:          %s\n", day.RunID)
			fmt.Printf("  transactions: %d (%d matched)\n", day.TotalTransactions, day.MatchedCount)
			fmt.Printf("  variance:     %s (effective %s after adjustments)\n",
				formatMinor(day.TotalVarianceMinor), formatMinor(day.EffectiveVariance()))
			fmt.Printf("  reports:      %v  backup: %v\n", day.ReportsGenerated, day.BackupComplete)
			if day.ClosedAt != nil {
				fmt.Printf("  closed by %s at %s\n", day.ClosedBy, day.ClosedAt.Format("2006-01-02 15:04:05 MST"))
			}

			exceptions, err := e.engine.Exceptions(ctx, args[0], provider)
			if err != nil {
				return err
			}
			open := 0
			for _, exc := range exceptions {
				if !exc.Resolved {
					open++
				}
			}
			fmt.Printf("  exceptions:   %d (%d unresolved)\n", len(exceptions), open)
			for _, exc := range exceptions {
				state := "open"
				if exc.Resolved {
					state = "resolved"
				}
				fmt.Printf("    %s  %-20s %-6s %-8s impact %s\n",
					exc.ID, exc.Category, exc.Severity, state, formatMinor(exc.FinancialImpactMinor))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "provider code (required)")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}
