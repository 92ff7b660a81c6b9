package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/loam"

	loamAdapter "github.com/aretw0/espalier/pkg/adapters/loam"
)

func main() {
	targetDir := "examples/demo-garden"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	// Ensure dir exists
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Generating demo workspace in: %s\n", targetDir)

	// Init Loam (No Versioning = pure file generation)
	// This acts as our "script editor" saving markdown documents to disk.
	repo, err := loam.Init(targetDir, loam.WithVersioning(false))
	if err != nil {
		panic(err)
	}

	typedRepo := loam.NewTypedRepository[loamAdapter.ScriptMetadata](repo)
	ctx := context.TODO()

	// 1. Tour (linear, shows saved payloads and undo/redo notes)
	err = typedRepo.Save(ctx, &loam.DocumentModel[loamAdapter.ScriptMetadata]{
		ID:      "tour",
		Content: "A guided walkthrough. Every answer forks the timeline; `:undo`\nsteps back without losing the branch you left.",
		Data: loamAdapter.ScriptMetadata{
			Steps: []map[string]any{
				{"send": "# The Tour\nIntroduce yourself with `name <your name>`."},
				{"receive": "name", "save_to": "visitor",
					"undo": "forget {{visitor}}", "redo": "meet {{visitor}} again"},
				{"send": "Nice to meet you, {{visitor}}. Send `ready` for the last stop."},
				{"receive": "ready", "limit": 3, "undo": "back to the doorway"},
				{"send": "That's the tour, {{visitor}}. `:labels` shows where you have been."},
				{"return": "toured"},
			},
		},
	})
	check(err)

	// 2. Quiz (branches on a payload field, declares a payload schema)
	err = typedRepo.Save(ctx, &loam.DocumentModel[loamAdapter.ScriptMetadata]{
		ID:      "quiz",
		Content: "One question, two endings. The receive rejects payloads without\na text field, and a thrown error lands on the recover label.",
		Data: loamAdapter.ScriptMetadata{
			OnError: "recover",
			Steps: []map[string]any{
				{"send": "Answer with `answer {\"text\": \"...\", \"sure\": true}`."},
				{"receive": "answer", "save_to": "reply", "limit": 2,
					"expects": map[string]any{"text": "string"}},
				{"set": map[string]any{"key": "sure", "value": "{{reply.sure}}"}},
				{"when": map[string]any{"key": "sure", "goto": "confident"}},
				{"send": "You said {{reply.text}}. Undo and try it with conviction."},
				{"return": "{{reply.text}}"},
				{"label": "confident"},
				{"send": "Bold! {{reply.text}} it is."},
				{"return": "{{reply.text}}"},
				{"label": "recover"},
				{"fail": "the quiz broke: {{error}}"},
			},
		},
	})
	check(err)

	// 3. Maze (the timeline doubles as the trail of rooms you walked)
	err = typedRepo.Save(ctx, &loam.DocumentModel[loamAdapter.ScriptMetadata]{
		ID:      "maze",
		Content: "A two-door maze. Wrong turns loop back to the fork, so the\ntimeline reads as the trail of every attempt.",
		Data: loamAdapter.ScriptMetadata{
			Steps: []map[string]any{
				{"send": "A fork in the path. `go {\"left\": true}` or `go {}` for right."},
				{"label": "fork"},
				{"receive": "go", "save_to": "step",
					"undo": "you walk back to the fork", "redo": "you retrace your steps"},
				{"set": map[string]any{"key": "left", "value": "{{step.left}}"}},
				{"when": map[string]any{"key": "left", "goto": "garden"}},
				{"send": "A dead end. Try the other door, or `:undo` to erase the detour."},
				{"goto": "fork"},
				{"label": "garden"},
				{"send": "A quiet garden. You made it."},
				{"return": "garden"},
			},
		},
	})
	check(err)

	fmt.Println("Done. Verify contents in", targetDir)
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
