package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// ProgramLoaderContractTest is a reusable test suite that verifies if an
// adapter complies with ports.ProgramLoader. wantNames are programs the
// loader must be able to serve.
func ProgramLoaderContractTest(t *testing.T, loader ports.ProgramLoader, wantNames []string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_Success", func(t *testing.T) {
		for _, name := range wantNames {
			program, err := loader.Load(ctx, name)
			if err != nil {
				t.Fatalf("unexpected error loading program %s: %v", name, err)
			}
			if program.Name() != name {
				t.Errorf("program name mismatch. got %q, want %q", program.Name(), name)
			}
			if program.Entry() == "" {
				t.Errorf("program %s has no entry position", name)
			}
		}
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := loader.Load(ctx, "non-existent-program")
		if err == nil {
			t.Fatal("expected error for non-existent program, got nil")
		}
		if !errors.Is(err, domain.ErrProgramNotFound) {
			t.Errorf("expected ErrProgramNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		names, err := loader.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing programs: %v", err)
		}
		indexed := make(map[string]bool, len(names))
		for _, name := range names {
			indexed[name] = true
		}
		for _, want := range wantNames {
			if !indexed[want] {
				t.Errorf("List is missing program %q (got %v)", want, names)
			}
		}
	})
}
