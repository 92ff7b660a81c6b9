package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/tracing"
)

var rootCmd = &cobra.Command{
	Use:   "espalier",
	Short: "Espalier is a forkable coroutine runtime with branching history",
	Long: `Espalier runs scripted programs whose state forks at every suspension
point, giving each session an undoable timeline backed by pluggable stores.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		traceFile, _ := cmd.Flags().GetString("trace")
		if traceFile == "" {
			return nil
		}
		if traceFile == "-" {
			traceFile = "" // tracing.Init treats empty as stdout
		}
		return tracing.Init("espalier", strings.TrimSpace(espalier.Version), traceFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("scripts", ".", "Directory containing program scripts")
	rootCmd.PersistentFlags().Bool("loam", false, "Treat the scripts directory as a Loam markdown workspace")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("trace", "", `Write OpenTelemetry spans to this file ("-" for stdout)`)
}
