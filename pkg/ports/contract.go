package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/pkg/domain"
)

// RunTimelineStoreContract runs a suite of tests to verify that a
// TimelineStore implementation adheres to the defined interface contract.
func RunTimelineStoreContract(t *testing.T, store TimelineStore) {
	ctx := context.Background()
	timelineID := "contract-test-timeline-" + time.Now().Format("20060102150405")

	makeSnapshot := func() *domain.TimelineSnapshot {
		root := domain.NewFrame("0")
		root.Locals["visits"] = 0

		entry := domain.NewFrame("2")
		entry.Locals["visits"] = 1
		entry.Locals["visitor"] = "ada"

		return &domain.TimelineSnapshot{
			Program: "contract-program",
			Entries: []domain.EntrySnapshot{
				{Label: "", Limit: domain.Unlimited, Frame: root},
				{Label: "arrive", Limit: 3, Frame: entry},
			},
			Cursor:  1,
			SavedAt: time.Now().UTC(),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		snap := makeSnapshot()
		require.NoError(t, store.Save(ctx, timelineID, snap), "Save should not return error")

		loaded, err := store.Load(ctx, timelineID)
		require.NoError(t, err, "Load should not return error")

		assert.Equal(t, snap.Program, loaded.Program)
		assert.Equal(t, snap.Cursor, loaded.Cursor)
		require.Len(t, loaded.Entries, 2)
		assert.Equal(t, "arrive", loaded.Entries[1].Label)
		assert.Equal(t, 3, loaded.Entries[1].Limit)
		require.NotNil(t, loaded.Entries[1].Frame)
		assert.Equal(t, domain.Position("2"), loaded.Entries[1].Frame.Position)
		assert.Equal(t, "ada", loaded.Entries[1].Frame.Locals["visitor"])
		// JSON persistence may deliver numbers as float64; only presence is
		// part of the contract.
		assert.NotNil(t, loaded.Entries[1].Frame.Locals["visits"])
	})

	t.Run("Loaded snapshot is isolated", func(t *testing.T) {
		snap := makeSnapshot()
		require.NoError(t, store.Save(ctx, timelineID, snap))

		first, err := store.Load(ctx, timelineID)
		require.NoError(t, err)
		first.Entries[1].Frame.Locals["visitor"] = "mallory"

		second, err := store.Load(ctx, timelineID)
		require.NoError(t, err)
		assert.Equal(t, "ada", second.Entries[1].Frame.Locals["visitor"])
	})

	t.Run("Overwrite", func(t *testing.T) {
		snap := makeSnapshot()
		require.NoError(t, store.Save(ctx, timelineID, snap))

		snap.Cursor = 0
		require.NoError(t, store.Save(ctx, timelineID, snap))

		loaded, err := store.Load(ctx, timelineID)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Cursor)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+timelineID)
		assert.ErrorIs(t, err, domain.ErrTimelineNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, timelineID, makeSnapshot()))

		require.NoError(t, store.Delete(ctx, timelineID), "Delete should not return error")

		_, err := store.Load(ctx, timelineID)
		assert.ErrorIs(t, err, domain.ErrTimelineNotFound, "Load after Delete should return ErrTimelineNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := timelineID + "-1"
		id2 := timelineID + "-2"
		require.NoError(t, store.Save(ctx, id1, makeSnapshot()))
		require.NoError(t, store.Save(ctx, id2, makeSnapshot()))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		timelines, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, timelines, id1)
		assert.Contains(t, timelines, id2)
	})
}
