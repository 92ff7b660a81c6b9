package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/runner"
)

// RunWatch runs the program in development mode: the session restarts
// whenever the script source changes, while the timeline survives reloads
// through the session store.
func RunWatch(opts RunOptions) error {
	logger := createLogger(opts.Debug)

	loader, err := NewLoader(opts)
	if err != nil {
		return err
	}
	watchable, ok := loader.(ports.Watchable)
	if !ok {
		return fmt.Errorf("source %q does not support watching", opts.ScriptsDir)
	}

	// Watch sessions get a stable per-workspace ID so history carries across
	// reloads even on the default in-memory store.
	if opts.SessionID == "" {
		opts.SessionID = defaultWatchSession(opts.ScriptsDir, opts.Program)
	}

	store, closeStore, err := NewStore(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Warn("failed to close store", "err", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Fresh {
		if err := store.Delete(ctx, opts.SessionID); err != nil {
			logger.Debug("session reset skipped", "err", err)
		}
	}

	if showBanner(opts) {
		tui.PrintBanner(strings.TrimSpace(espalier.Version))
	}
	logger.Info("watching scripts", "dir", opts.ScriptsDir, "session_id", opts.SessionID)
	printSystemMessage("watching %s (session %q, ctrl+c to stop)", opts.ScriptsDir, opts.SessionID)

	changes, err := watchable.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %q: %w", opts.ScriptsDir, err)
	}

	// One handler for the whole watch loop. Its input pump owns stdin; a
	// fresh handler per reload would leave a ghost reader stealing lines
	// from the next iteration.
	var handlerOpts []runner.TextHandlerOption
	if stdoutIsTerminal() {
		handlerOpts = append(handlerOpts, runner.WithTextRenderer(tui.NewRenderer()))
	}
	handler := runner.NewTextHandler(os.Stdin, os.Stdout, handlerOpts...)

	for {
		again, err := watchIteration(ctx, opts, logger, loader, store, handler, changes)
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
		printSystemMessage("reloading %q", opts.Program)
	}
}

// watchIteration runs one session until the script changes, the session ends
// or the process is signalled. It reports whether the loop should continue.
func watchIteration(parent context.Context, opts RunOptions, logger *slog.Logger, loader ports.ProgramLoader, store ports.TimelineStore, handler runner.IOHandler, changes <-chan string) (bool, error) {
	program, err := loader.Load(parent, opts.Program)
	if err != nil {
		// A broken script is not fatal here: report it and wait for the
		// author to save a fix.
		logger.Error("script failed to load", "program", opts.Program, "err", err)
		printSystemMessage("script error: %v", err)
		return waitForChange(parent, changes)
	}

	runCtx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		r := runner.NewRunner(createRunnerOptions(opts, logger, store, handler)...)
		done <- r.Run(runCtx, program)
	}()

	select {
	case <-parent.Done():
		cancel()
		<-done
		logger.Info("watcher stopped", "reason", "signal")
		return false, nil

	case name, ok := <-changes:
		cancel()
		if err := <-done; err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		logger.Info("change detected", "document", name)
		printSystemMessage("change detected in %q", name)
		return true, nil

	case err := <-done:
		if err != nil {
			logger.Error("session failed", "err", err)
			printSystemMessage("session error: %v", err)
			return waitForChange(parent, changes)
		}
		// The user ended the session; stop watching too.
		return false, nil
	}
}

// waitForChange blocks until the next change event or shutdown.
func waitForChange(parent context.Context, changes <-chan string) (bool, error) {
	printSystemMessage("waiting for changes...")
	select {
	case <-parent.Done():
		return false, nil
	case _, ok := <-changes:
		return ok, nil
	}
}
