package cli

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/aretw0/espalier/internal/logging"
)

// createLogger builds the command logger. Sessions stay quiet unless --debug
// is set; debug output goes to stderr so the REPL on stdout is untouched.
func createLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// printSystemMessage prints an out-of-band notice to the user, visually
// separated from program output.
func printSystemMessage(format string, args ...any) {
	fmt.Printf(">>> %s\n", fmt.Sprintf(format, args...))
}

// stdoutIsTerminal reports whether stdout is attached to a TTY. It decides
// whether payloads go through the markdown renderer and whether the banner
// prints.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// showBanner reports whether the decorative banner should print. Machine
// modes and one-shot dispatches keep their output clean.
func showBanner(opts RunOptions) bool {
	return !opts.JSON && !opts.Headless && opts.Event == "" && stdoutIsTerminal()
}

// defaultWatchSession derives a stable session ID for watch mode, scoped to
// the workspace and program so concurrent watchers do not share timelines.
func defaultWatchSession(dir, program string) string {
	sum := sha256.Sum256([]byte(dir + "\x00" + program))
	return fmt.Sprintf("watch-%x", sum[:4])
}
