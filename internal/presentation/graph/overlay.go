package graph

import (
	"strconv"

	"github.com/aretw0/espalier/pkg/domain"
)

// OverlayFromSnapshot maps a timeline onto script steps: every entry parked
// on a receive marks that step visited, and the entry under the cursor
// becomes the current step. It assumes the program was compiled from a
// script, where frame positions are numeric step indices; entries with
// foreign positions are skipped.
func OverlayFromSnapshot(snap *domain.TimelineSnapshot) *Overlay {
	overlay := &Overlay{CurrentStep: -1}
	if snap == nil {
		return overlay
	}
	for i, entry := range snap.Entries {
		step := suspendedStep(entry)
		if step < 0 {
			continue
		}
		overlay.VisitedSteps = append(overlay.VisitedSteps, step)
		if i == snap.Cursor {
			overlay.CurrentStep = step
		}
	}
	return overlay
}

// suspendedStep recovers the step index of the receive an entry suspended
// on. Frames store the resume position, one past the receive, so the root
// entry, parked at the program entry, reports -1.
func suspendedStep(entry domain.EntrySnapshot) int {
	if entry.Frame == nil {
		return -1
	}
	pos, err := strconv.Atoi(string(entry.Frame.Position))
	if err != nil || pos < 1 {
		return -1
	}
	return pos - 1
}
