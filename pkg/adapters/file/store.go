// Package file provides filesystem-backed adapters: a timeline store that
// persists snapshots as JSON files and a program loader that compiles YAML
// scripts from a directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Store implements ports.TimelineStore on the local filesystem. Each timeline
// is one JSON file in a configured directory.
type Store struct {
	BasePath string
}

// NewStore creates a Store rooted at basePath. An empty basePath defaults to
// ".espalier/timelines".
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".espalier", "timelines")
	}
	return &Store{BasePath: basePath}
}

// Save persists the snapshot atomically: it writes a temporary file in the
// same directory, fsyncs it, and renames it over the destination.
func (s *Store) Save(ctx context.Context, id string, snap *domain.TimelineSnapshot) error {
	if id == "" {
		return fmt.Errorf("timeline id cannot be empty")
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure timeline directory: %w", err)
	}

	destPath := filepath.Join(s.BasePath, id+".json")

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// The temp file must live in the destination directory: rename is only
	// atomic within one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+id+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows also refuses to rename over an existing file. Removing first
	// opens a tiny window without the file, which beats leaving a partial
	// write behind.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing timeline file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}

	return nil
}

// Load reads a snapshot back from its JSON file.
func (s *Store) Load(ctx context.Context, id string) (*domain.TimelineSnapshot, error) {
	if id == "" {
		return nil, fmt.Errorf("timeline id cannot be empty")
	}

	data, err := os.ReadFile(filepath.Join(s.BasePath, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrTimelineNotFound
		}
		return nil, fmt.Errorf("failed to read timeline file: %w", err)
	}

	var snap domain.TimelineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timeline snapshot: %w", err)
	}

	return &snap, nil
}

// Delete removes the timeline file. Deleting a missing timeline is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("timeline id cannot be empty")
	}

	err := os.Remove(filepath.Join(s.BasePath, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete timeline file: %w", err)
	}

	return nil
}

// List returns the ids of all persisted timelines.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list timelines: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		name := entry.Name()
		ids = append(ids, name[:len(name)-len(".json")])
	}

	return ids, nil
}

var _ ports.TimelineStore = (*Store)(nil)
