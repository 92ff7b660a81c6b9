package domain

import "time"

// EntrySnapshot is the serializable form of one history entry: the label of
// the event that produced it, its admission limit, and the suspended frame.
// Activity counters are transient and not persisted; restored entries start
// with zero in-flight branches. Undo/redo hooks are process-local functions
// and are likewise not persisted.
type EntrySnapshot struct {
	Label string `json:"label"`
	Limit int    `json:"limit"`
	Frame *Frame `json:"frame"`
}

// TimelineSnapshot is the serializable form of a driver's branch history.
// Program names the body program all entries share; restoring a snapshot
// requires resolving that name to the same immutable Program.
type TimelineSnapshot struct {
	Program string          `json:"program"`
	Entries []EntrySnapshot `json:"entries"`
	Cursor  int             `json:"cursor"`
	SavedAt time.Time       `json:"saved_at"`
}

// Clone returns a structurally independent copy of the snapshot, so stores
// can hand out snapshots without aliasing their internal state.
func (s *TimelineSnapshot) Clone() *TimelineSnapshot {
	if s == nil {
		return nil
	}
	out := &TimelineSnapshot{
		Program: s.Program,
		Cursor:  s.Cursor,
		SavedAt: s.SavedAt,
	}
	if s.Entries != nil {
		out.Entries = make([]EntrySnapshot, len(s.Entries))
		for i, e := range s.Entries {
			out.Entries[i] = EntrySnapshot{
				Label: e.Label,
				Limit: e.Limit,
				Frame: e.Frame.Clone(),
			}
		}
	}
	return out
}
