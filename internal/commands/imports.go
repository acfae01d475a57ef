package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daybook-dev/daybook/internal/importer"
)

func newImportCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "List staged feed files, or archive one after processing",
		Long: "Without arguments, lists the CSV feeds staged in the import\n" +
			"directory. With a file name, moves that feed to import/processed/\n" +
			"once its day has been reconciled and closed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			if len(args) == 1 {
				if err := importer.MarkProcessed(e.cfg.DataDir, args[0]); err != nil {
					return err
				}
				fmt.Printf("Archived %s to import/processed/.\n", args[0])
				return nil
			}

			files, err := importer.Scan(e.cfg.DataDir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("No feeds staged.")
				return nil
			}
			for _, f := range files {
				fmt.Printf("  %-40s %8d bytes\n", f.Name, f.Size)
			}
			return nil
		},
	}
	return cmd
}
