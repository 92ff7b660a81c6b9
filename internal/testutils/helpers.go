// Package testutils holds shared fixtures for integration tests.
package testutils

import (
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo initializes a Loam repository in a fresh temp dir and returns
// both. Versioning is off unless the caller opts back in, so tests stay pure
// file IO.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	dir := t.TempDir()

	// Loam prefers absolute paths; t.TempDir is absolute in practice but the
	// contract does not promise it.
	absPath, err := filepath.Abs(dir)
	require.NoError(t, err, "failed to resolve temp dir")

	if len(opts) == 0 {
		opts = []loam.Option{loam.WithVersioning(false)}
	}
	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "failed to init loam repo")

	return absPath, repo
}
