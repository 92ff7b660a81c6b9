package main

import (
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [program]",
	Short: "Run a program interactively",
	Long: `Starts a program from the scripts directory and drives it from the
terminal. Without a program name it lists what the source provides.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := runOptions(cmd)

		if len(args) == 0 {
			if err := cli.ListPrograms(opts); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("\nUsage: espalier run <program>")
			return
		}
		opts.Program = args[0]

		if err := cli.Execute(opts); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Run in headless mode (no prompts, strict IO)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	runCmd.Flags().BoolP("watch", "w", false, "Run in development mode with hot-reload")
	runCmd.Flags().String("session", "", "Session ID for a persistent timeline")
	runCmd.Flags().Bool("fresh", false, "Discard the stored timeline before starting")
	runCmd.Flags().String("store", "", "Timeline store backend: memory, file or redis")
	runCmd.Flags().String("redis-url", "", "Redis connection URL (implies --store redis)")
	runCmd.Flags().String("event", "", `Dispatch a single input line and exit (e.g. 'answer {"text":"hi"}')`)

	// Make 'run' the default when no subcommand is given.
	rootCmd.Run = runCmd.Run
}

// runOptions collects the run flags. Flags the invoking command does not
// define fall back to their zero values, so the root command can share this
// handler.
func runOptions(cmd *cobra.Command) cli.RunOptions {
	scripts, _ := cmd.Flags().GetString("scripts")
	loamMode, _ := cmd.Flags().GetBool("loam")
	debug, _ := cmd.Flags().GetBool("debug")
	headless, _ := cmd.Flags().GetBool("headless")
	jsonMode, _ := cmd.Flags().GetBool("json")
	watchMode, _ := cmd.Flags().GetBool("watch")
	sessionID, _ := cmd.Flags().GetString("session")
	fresh, _ := cmd.Flags().GetBool("fresh")
	store, _ := cmd.Flags().GetString("store")
	redisURL, _ := cmd.Flags().GetString("redis-url")
	event, _ := cmd.Flags().GetString("event")

	return cli.RunOptions{
		ScriptsDir: scripts,
		Loam:       loamMode,
		Debug:      debug,
		Headless:   headless,
		JSON:       jsonMode,
		Watch:      watchMode,
		SessionID:  sessionID,
		Fresh:      fresh,
		Store:      store,
		RedisURL:   redisURL,
		Event:      event,
	}
}
