package main

import (
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <program>",
	Short: "Export a program as a Mermaid diagram",
	Long: `Parses a script and outputs a Mermaid flowchart (graph TD) of its steps.
With --session the stored timeline is overlaid: steps the session suspended
on are marked visited and the cursor's step is highlighted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		sessionID, _ := cmd.Flags().GetString("session")

		loader, err := cli.NewLoader(runOptions(cmd))
		if err != nil {
			fmt.Printf("Error initializing loader: %v\n", err)
			os.Exit(1)
		}
		source, ok := loader.(scriptSource)
		if !ok {
			fmt.Println("Error: program source does not expose raw scripts")
			os.Exit(1)
		}

		sc, err := source.Script(cmd.Context(), name)
		if err != nil {
			fmt.Printf("Error loading script: %v\n", err)
			os.Exit(1)
		}

		var overlay *graph.Overlay
		if sessionID != "" {
			store, closeStore := getStore(cmd)
			defer closeStore()

			snap, err := store.Load(cmd.Context(), sessionID)
			if err != nil {
				fmt.Printf("Error loading session '%s': %v\n", sessionID, err)
				os.Exit(1)
			}
			overlay = graph.OverlayFromSnapshot(snap)
		}

		// Generate and print Mermaid graph
		fmt.Print(graph.GenerateMermaid(sc, overlay))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().String("session", "", "Overlay the timeline of this session onto the graph")
	graphCmd.Flags().String("store", "", "Timeline store backend: memory, file or redis")
	graphCmd.Flags().String("redis-url", "", "Redis connection URL (implies --store redis)")
}
