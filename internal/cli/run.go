// Package cli implements the command logic behind cmd/espalier: resolving
// program sources and timeline stores from flags, and driving interactive,
// one-shot and watch sessions.
package cli

import (
	"context"
	"fmt"
)

// RunOptions carries the configuration of the run command.
type RunOptions struct {
	// ScriptsDir is the directory programs are loaded from.
	ScriptsDir string
	// Program is the name of the program to run.
	Program string
	// Loam treats ScriptsDir as a Loam markdown workspace instead of a
	// directory of YAML scripts.
	Loam bool

	Headless bool
	JSON     bool
	Watch    bool
	Debug    bool

	// Event, when set, dispatches a single input line and exits. The line
	// uses the REPL grammar: event type, optionally followed by a payload.
	Event string

	SessionID string
	Fresh     bool

	// Store names the timeline store backend: "", "memory", "file" or
	// "redis". Empty defaults to memory (file when a session ID is given,
	// so named sessions survive the process).
	Store    string
	RedisURL string
}

// Execute runs the run command, dispatching to watch or session mode.
func Execute(opts RunOptions) error {
	if opts.Watch {
		if opts.Headless {
			return fmt.Errorf("--watch and --headless cannot be used together")
		}
		if opts.JSON {
			return fmt.Errorf("--watch and --json cannot be used together")
		}
		if opts.Event != "" {
			return fmt.Errorf("--watch and --event cannot be used together")
		}
		return RunWatch(opts)
	}
	return RunSession(opts)
}

// ListPrograms prints the names the program source provides, one per line.
func ListPrograms(opts RunOptions) error {
	loader, err := NewLoader(opts)
	if err != nil {
		return err
	}
	names, err := loader.List(context.Background())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no scripts found")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
