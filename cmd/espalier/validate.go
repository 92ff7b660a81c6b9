package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/compiler"
	"github.com/aretw0/espalier/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [program...]",
	Short: "Check scripts for consistency",
	Long:  `Parses scripts and reports unreachable steps, unknown jump targets and malformed options. Without arguments it checks every script the source provides.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Scripts are valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// scriptSource is satisfied by loaders that expose parsed scripts without
// building them.
type scriptSource interface {
	Script(ctx context.Context, name string) (*compiler.Script, error)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	loader, err := cli.NewLoader(runOptions(cmd))
	if err != nil {
		return fmt.Errorf("failed to init loader: %w", err)
	}
	source, ok := loader.(scriptSource)
	if !ok {
		return fmt.Errorf("program source does not expose raw scripts")
	}

	names := args
	if len(names) == 0 {
		names, err = loader.List(ctx)
		if err != nil {
			return err
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no scripts found")
	}

	total := 0
	for _, name := range names {
		sc, err := source.Script(ctx, name)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			total++
			continue
		}
		for _, issue := range validator.Check(sc) {
			fmt.Printf("%s: %s\n", name, issue)
			total++
		}
	}

	if total > 0 {
		return fmt.Errorf("%d issue(s) found", total)
	}
	return nil
}
