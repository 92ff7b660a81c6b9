package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/adapters/file"
	loamAdapter "github.com/aretw0/espalier/pkg/adapters/loam"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/adapters/redis"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/runner"

	"github.com/aretw0/loam"
)

// DefaultRedisURL is used when a redis store is selected without --redis-url.
const DefaultRedisURL = "redis://localhost:6379/0"

// NewLoader resolves the program source. With --loam the scripts directory
// is opened as a Loam document workspace; otherwise scripts are plain YAML
// files.
func NewLoader(opts RunOptions) (ports.ProgramLoader, error) {
	if !opts.Loam {
		return file.NewLoader(opts.ScriptsDir), nil
	}

	absPath, err := filepath.Abs(opts.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("invalid scripts directory %q: %w", opts.ScriptsDir, err)
	}

	// Read-only keeps Loam from sandboxing the workspace. Strict mode stays
	// off so frontmatter integers reach the compiler as plain numbers.
	repo, err := loam.Init(absPath,
		loam.WithVersioning(false),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open loam workspace %q: %w", absPath, err)
	}

	return loamAdapter.New(loam.NewTypedRepository[loamAdapter.ScriptMetadata](repo)), nil
}

// NewStore selects the timeline store backend. The returned closer releases
// any backing connection and is safe to call on every path.
//
// An empty --store defaults to memory, or to file when a session ID is given
// so that named sessions survive the process. --redis-url implies redis.
func NewStore(opts RunOptions) (ports.TimelineStore, func() error, error) {
	noop := func() error { return nil }

	backend := opts.Store
	if backend == "" {
		switch {
		case opts.RedisURL != "":
			backend = "redis"
		case opts.SessionID != "":
			backend = "file"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return memory.NewStore(), noop, nil

	case "file":
		return file.NewStore(sessionsDir(opts.ScriptsDir)), noop, nil

	case "redis":
		rawURL := opts.RedisURL
		if rawURL == "" {
			rawURL = DefaultRedisURL
		}
		cfg, err := goredis.ParseURL(rawURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		store := redis.NewFromClient(goredis.NewClient(cfg))
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q (expected memory, file or redis)", backend)
	}
}

// sessionsDir is where the file store keeps timelines for a workspace.
func sessionsDir(scriptsDir string) string {
	return filepath.Join(scriptsDir, ".espalier", "sessions")
}

// createRunnerOptions assembles the runner configuration shared by the run
// modes. A non-nil handler overrides the default stdin/stdout wiring, which
// one-shot and watch modes use to control input.
func createRunnerOptions(opts RunOptions, logger *slog.Logger, store ports.TimelineStore, handler runner.IOHandler) []runner.Option {
	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithHeadless(opts.Headless),
		runner.WithDriverOptions(createDriverOptions(opts, logger)...),
	}

	if opts.SessionID != "" {
		runnerOpts = append(runnerOpts,
			runner.WithSessionID(opts.SessionID),
			runner.WithStore(store),
		)
	}

	switch {
	case handler != nil:
		runnerOpts = append(runnerOpts, runner.WithHandler(handler))
	case opts.JSON:
		runnerOpts = append(runnerOpts, runner.WithHandler(runner.NewJSONHandler(os.Stdin, os.Stdout)))
	case !opts.Headless && stdoutIsTerminal():
		runnerOpts = append(runnerOpts, runner.WithRenderer(tui.NewRenderer()))
	}

	return runnerOpts
}

// createDriverOptions wires the driver options common to every mode. Debug
// sessions additionally trace lifecycle events through the logger.
func createDriverOptions(opts RunOptions, logger *slog.Logger) []espalier.Option {
	driverOpts := []espalier.Option{espalier.WithLogger(logger)}
	if opts.Debug {
		driverOpts = append(driverOpts, espalier.WithLifecycleHooks(observability.LoggingHooks(logger)))
	}
	return driverOpts
}
