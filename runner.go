package espalier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// Runner handles a line-oriented exploration loop over a Driver using
// provided IO. This allows for easy testing and integration with different
// frontends (CLI, TUI, etc). For scripted sessions, signal handling and
// structured output, use pkg/runner instead.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
}

// ContentRenderer is a function that transforms sent payloads before
// outputting them. This allows for TUI rendering (markdown to ANSI) without
// coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a new Runner. Input and Output must be set before Run
// (use os.Stdin and os.Stdout for an interactive session).
func NewRunner() *Runner {
	return &Runner{}
}

// Run builds a Driver for the program and loops: each input line becomes a
// dispatched event, and everything the program sends is printed. The words
// "undo" and "redo" navigate the timeline instead of being dispatched;
// "history" prints the recorded labels; "exit", "quit" or EOF end the loop.
func (r *Runner) Run(program domain.Program, opts ...Option) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lineReader := bufio.NewReader(r.Input)
	writer := r.Output

	sink := func(ctx context.Context, payload any) {
		output := fmt.Sprint(payload)
		if r.Renderer != nil {
			if rendered, err := r.Renderer(output); err == nil {
				output = rendered
			}
		}
		fmt.Fprintln(writer, strings.TrimSpace(output))
	}

	driver, err := NewDriver(program, sink, opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if !r.Headless {
		fmt.Fprintln(writer, "--- Espalier (Runner) ---")
	}

	for {
		if !r.Headless {
			fmt.Fprint(writer, "> ")
		}

		text, err := lineReader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Graceful exit on EOF
				break
			}
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)

		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(writer, "Bye!")
			return nil
		case "undo":
			if err := driver.Undo(ctx); err != nil {
				if errors.Is(err, domain.ErrAtStart) {
					fmt.Fprintln(writer, "Already at the beginning.")
					continue
				}
				return err
			}
			continue
		case "redo":
			if err := driver.Redo(ctx); err != nil {
				if errors.Is(err, domain.ErrAtEnd) {
					fmt.Fprintln(writer, "Nothing to redo.")
					continue
				}
				return err
			}
			continue
		case "history":
			fmt.Fprintf(writer, "entries: %v (cursor %d)\n", driver.Labels(), driver.CurrentIndex())
			continue
		}

		if err := driver.Dispatch(ctx, domain.NewEvent(input, input)); err != nil {
			var branchErr *domain.BranchError
			if errors.As(err, &branchErr) {
				// A failed branch leaves no entry; the session continues.
				fmt.Fprintf(writer, "branch %q failed: %v\n", branchErr.Label, branchErr.Err)
				continue
			}
			return fmt.Errorf("dispatch error: %w", err)
		}
	}
	return nil
}
