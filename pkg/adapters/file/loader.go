package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/espalier/internal/compiler"
	"github.com/aretw0/espalier/internal/validator"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Loader implements ports.ProgramLoader over a directory of YAML scripts.
// A program named "trip" is the file "trip.yaml" (or "trip.yml").
type Loader struct {
	Dir    string
	strict bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStrict refuses to load scripts with validation issues, including ones
// that would still build, like unreachable steps.
func WithStrict() LoaderOption {
	return func(l *Loader) {
		l.strict = true
	}
}

// NewLoader creates a Loader reading scripts from dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{Dir: dir}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var scriptExtensions = []string{".yaml", ".yml"}

// Script reads and parses a script without building it, for tools that
// inspect structure rather than execute it.
func (l *Loader) Script(ctx context.Context, name string) (*compiler.Script, error) {
	if !safeName(name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, name)
	}

	data, err := l.read(name)
	if err != nil {
		return nil, err
	}

	sc, err := compiler.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("script %q: %w", name, err)
	}
	return sc, nil
}

// Load reads, parses and builds the script for name.
func (l *Loader) Load(ctx context.Context, name string) (domain.Program, error) {
	sc, err := l.Script(ctx, name)
	if err != nil {
		return nil, err
	}

	if l.strict {
		if issues := validator.Check(sc); len(issues) > 0 {
			msgs := make([]string, len(issues))
			for i, issue := range issues {
				msgs[i] = issue.String()
			}
			return nil, fmt.Errorf("script %q has %d issues:\n- %s", name, len(issues), strings.Join(msgs, "\n- "))
		}
	}

	program, err := sc.Build(name)
	if err != nil {
		return nil, err
	}
	if program.Name() != name {
		return nil, fmt.Errorf("script file %q declares conflicting name %q", name, program.Name())
	}
	return program, nil
}

// List returns the names of all scripts in the directory, sorted.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := scriptStem(entry.Name())
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// Watch implements ports.Watchable. It emits the name of a script whenever
// its file is written, created, removed or renamed. The watcher shuts down
// when the context is cancelled.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start script watcher: %w", err)
	}
	if err := watcher.Add(l.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.Dir, err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !evt.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					continue
				}
				name, isScript := scriptStem(filepath.Base(evt.Name))
				if !isScript {
					continue
				}
				select {
				case ch <- name:
				case <-ctx.Done():
					return
				}
			case _, ok := <-watcher.Errors:
				// Drained so the watcher never blocks; a dead watcher
				// surfaces as a closed Events channel.
				if !ok {
					return
				}
			}
		}
	}()

	return ch, nil
}

func (l *Loader) read(name string) ([]byte, error) {
	for _, ext := range scriptExtensions {
		data, err := os.ReadFile(filepath.Join(l.Dir, name+ext))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read script %q: %w", name, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, name)
}

// safeName rejects names that could escape the script directory.
func safeName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func scriptStem(filename string) (string, bool) {
	ext := filepath.Ext(filename)
	for _, want := range scriptExtensions {
		if ext == want {
			return strings.TrimSuffix(filename, ext), true
		}
	}
	return "", false
}

var (
	_ ports.ProgramLoader = (*Loader)(nil)
	_ ports.Watchable     = (*Loader)(nil)
)
