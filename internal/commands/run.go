package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daybook-dev/daybook/internal/model"
)

func newRunCommand(configPath *string) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "run [date]",
		Short: "Run reconciliation for a business day",
		Long:  "Run reconciliation for a business day. Defaults to yesterday when no date is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().AddDate(0, 0, -1).Format(model.DateFormat)
			if len(args) > 0 {
				date = args[0]
			}

			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.engine.RunReconciliation(cmd.Context(), date, provider)
			if err != nil {
				return err
			}

			if res.VerifyOnly {
				fmt.Printf("Day %s is closed; verification run only, nothing committed.\n", res.Day.Key)
			}
			fmt.Printf("Reconciled %s: %d transactions, %d matched, variance %s\n",
				res.Day.Key, res.Day.TotalTransactions, res.Day.MatchedCount, formatMinor(res.Day.TotalVarianceMinor))
			if len(res.Exceptions) > 0 {
				fmt.Printf("%d exception(s):\n", len(res.Exceptions))
				for _, exc := range res.Exceptions {
					fmt.Printf("  %s  %-20s %-6s impact %s\n",
						exc.ID, exc.Category, exc.Severity, formatMinor(exc.FinancialImpactMinor))
				}
			}
			if len(res.Report.Rejected) > 0 {
				fmt.Printf("%d record(s) rejected during normalization:\n", len(res.Report.Rejected))
				for _, rej := range res.Report.Rejected {
					fmt.Printf("  %s/%s: %s\n", rej.Source, rej.ID, rej.Reason)
				}
			}
			for _, warn := range res.Report.Warnings {
				fmt.Printf("warning: %s\n", warn)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "provider code to reconcile (required)")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

// formatMinor renders minor units as a signed decimal amount.
func formatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
