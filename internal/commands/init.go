package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daybook-dev/daybook/internal/config"
	"github.com/daybook-dev/daybook/internal/providers"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new daybook data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(absDir)
		},
	}
	return cmd
}

func runInit(dir string) error {
	// Create directory structure.
	dirs := []string{
		"import",
		filepath.Join("import", "processed"),
		"logs",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write daybook.yaml.
	cfg := config.Default(dir)
	if err := config.Save(filepath.Join(dir, "daybook.yaml"), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Write the starter provider catalogue.
	f, err := os.Create(filepath.Join(dir, "providers.csv"))
	if err != nil {
		return fmt.Errorf("creating provider catalogue: %w", err)
	}
	defer f.Close()
	if err := providers.WriteProviders(f, providers.Defaults()); err != nil {
		return fmt.Errorf("writing provider catalogue: %w", err)
	}

	// Write import/.gitkeep.
	if err := os.WriteFile(filepath.Join(dir, "import", ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	fmt.Printf("Initialized daybook data directory at %s\n", dir)
	return nil
}
