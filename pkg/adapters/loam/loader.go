// Package loam adapts a Loam document repository to the ProgramLoader port.
// Scripts live as markdown documents whose frontmatter carries the program
// steps; the body is prose about the program, available through Describe.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/espalier/internal/compiler"
	"github.com/aretw0/espalier/internal/validator"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Loader implements ports.ProgramLoader over a Loam repository.
type Loader struct {
	Repo   *loam.TypedRepository[ScriptMetadata]
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

// New creates a Loam-backed loader.
//
// The repository should be initialized without Loam's strict numeric mode:
// strict mode normalizes frontmatter numbers to json.Number, which the
// script compiler does not decode.
func New(repo *loam.TypedRepository[ScriptMetadata], opts ...LoaderOption) *Loader {
	l := &Loader{Repo: repo}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Script retrieves the parsed but unbuilt form of the script document for
// name, for tools that inspect structure rather than execute it.
func (l *Loader) Script(ctx context.Context, name string) (*compiler.Script, error) {
	doc, err := l.Repo.Get(ctx, name)
	if err != nil {
		// Loam reports lookup misses and read failures through the same
		// error, so both surface as not-found with the cause attached.
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProgramNotFound, name, err)
	}

	sc := &compiler.Script{
		Name:    doc.Data.Name,
		OnError: doc.Data.OnError,
		Steps:   doc.Data.Steps,
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("script %q has no steps", name)
	}
	if sc.Name == "" {
		sc.Name = trimExtension(doc.ID)
	}
	return sc, nil
}

// Load retrieves and builds the script document for name. Loam resolves the
// name to a file itself, so "trip" finds trip.md as well as a literal "trip".
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
		return nil, fmt.Errorf("script document %q declares conflicting name %q", name, program.Name())
	}
	return program, nil
}

// List returns the names of all scripts in the repository, sorted. Documents
// whose IDs trim to the same name shadow each other on Load, so List reports
// them as a collision instead.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		name := trimExtension(doc.ID)
		if existing, ok := seen[name]; ok {
			return nil, fmt.Errorf("collision detected: script %q is defined in both %q and %q", name, existing, doc.ID)
		}
		seen[name] = doc.ID
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// Describe returns the markdown body of the script document for name with
// surrounding whitespace trimmed. Scripts without prose describe as "".
func (l *Loader) Describe(ctx context.Context, name string) (string, error) {
	doc, err := l.Repo.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrProgramNotFound, name, err)
	}
	return strings.TrimSpace(doc.Content), nil
}

// Watch implements ports.Watchable. It emits the trimmed document ID whenever
// a script changes on disk. Loam debounces write bursts itself.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

var (
	_ ports.ProgramLoader = (*Loader)(nil)
	_ ports.Watchable     = (*Loader)(nil)
)
