package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/runner"
)

// RunSession executes one interactive or one-shot session against the
// resolved program source and store.
func RunSession(opts RunOptions) error {
	logger := createLogger(opts.Debug)

	loader, err := NewLoader(opts)
	if err != nil {
		return err
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

	ctx := context.Background()

	if opts.Fresh && opts.SessionID != "" {
		if err := store.Delete(ctx, opts.SessionID); err != nil && !errors.Is(err, domain.ErrTimelineNotFound) {
			return fmt.Errorf("failed to reset session %q: %w", opts.SessionID, err)
		}
	}

	program, err := loader.Load(ctx, opts.Program)
	if err != nil {
		return err
	}

	if showBanner(opts) {
		tui.PrintBanner(strings.TrimSpace(espalier.Version))
	}

	if opts.Event != "" {
		return runOnce(ctx, opts, logger, store, program)
	}

	logSessionStatus(ctx, opts, logger, store)

	r := runner.NewRunner(createRunnerOptions(opts, logger, store, nil)...)
	if err := r.Run(ctx, program); err != nil {
		return err
	}

	if !opts.Headless && !opts.JSON {
		printSystemMessage("session ended")
	}
	return nil
}

// logSessionStatus tells the user whether a named session resumes existing
// history or starts fresh.
func logSessionStatus(ctx context.Context, opts RunOptions, logger *slog.Logger, store ports.TimelineStore) {
	if opts.SessionID == "" || opts.Headless || opts.JSON {
		return
	}
	if _, err := store.Load(ctx, opts.SessionID); err == nil {
		logger.Info("resuming session", "session_id", opts.SessionID)
		printSystemMessage("resuming session %q", opts.SessionID)
		return
	}
	logger.Info("starting session", "session_id", opts.SessionID)
	printSystemMessage("session %q", opts.SessionID)
}

// runOnce feeds the --event value through the REPL grammar as a single line
// and exits once the driver has settled. Persistence still applies, so a
// scripted sequence of one-shot calls advances a named session step by step.
func runOnce(ctx context.Context, opts RunOptions, logger *slog.Logger, store ports.TimelineStore, program domain.Program) error {
	opts.Headless = true

	input := strings.NewReader(opts.Event + "\n")
	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(input, os.Stdout)
	} else {
		handler = runner.NewTextHandler(input, os.Stdout, runner.WithPrompt(""))
	}

	r := runner.NewRunner(createRunnerOptions(opts, logger, store, handler)...)
	return r.Run(ctx, program)
}
