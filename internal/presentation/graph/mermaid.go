// Package graph renders parsed scripts as Mermaid flowcharts, optionally
// overlaying the state of a timeline on the step nodes.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier/internal/compiler"
)

// Overlay marks timeline state on the rendered script. Steps are 0-based
// indices into the script; a negative CurrentStep highlights nothing.
type Overlay struct {
	VisitedSteps []int
	CurrentStep  int
}

// GenerateMermaid produces Mermaid flowchart syntax for a parsed script.
// Shapes follow step semantics:
//   - receive: [/Parallelogram/] (waits for input)
//   - when: {Rhombus} (decision)
//   - label: [[Subroutine]] (jump anchor)
//   - return, fail: ((Circle)) (terminal)
//   - send, set, goto: [Rectangle]
//
// Jumps render as dotted edges, the error handler as a dotted edge from every
// receive. Overlay styles (Visited/Current) are applied if provided.
func GenerateMermaid(sc *compiler.Script, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("    start((\"start\"))\n")
	if len(sc.Steps) > 0 {
		sb.WriteString(fmt.Sprintf("    start --> %s\n", stepID(0)))
	}

	labels := stepLabels(sc)
	onError, hasHandler := labels[sc.OnError]
	needsEnd := false

	for i, step := range sc.Steps {
		id := stepID(i)

		kw, err := compiler.Keyword(step)
		if err != nil {
			// Invalid steps still render so authors see where they sit.
			sb.WriteString(fmt.Sprintf("    %s[\"step %d: invalid\"]\n", id, i+1))
			continue
		}

		opener, closer := stepShape(kw)
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", id, opener, stepText(kw, step), closer))

		// Outgoing edges.
		switch kw {
		case "goto":
			if target, ok := labels[asString(step["goto"])]; ok {
				sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", id, stepID(target)))
			}

		case "when":
			cond, target := whenSpec(step)
			if pc, ok := labels[target]; ok {
				sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", id, escapeMermaid(cond), stepID(pc)))
			}
			needsEnd = writeFallthrough(&sb, id, i, len(sc.Steps)) || needsEnd

		case "return", "fail":
			// Terminal, no outgoing edge.

		default:
			needsEnd = writeFallthrough(&sb, id, i, len(sc.Steps)) || needsEnd
		}

		if kw == "receive" && sc.OnError != "" && hasHandler {
			sb.WriteString(fmt.Sprintf("    %s -. \"on_error\" .-> %s\n", id, stepID(onError)))
		}
	}

	if needsEnd {
		sb.WriteString("    done((\"end\"))\n")
	}

	if overlay != nil {
		writeOverlay(&sb, overlay, len(sc.Steps))
	}

	return sb.String()
}

// writeFallthrough draws the edge to the next step, or to the synthetic end
// node when the step is the last one. It reports whether the end node is
// needed.
func writeFallthrough(sb *strings.Builder, id string, i, total int) bool {
	if i+1 < total {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", id, stepID(i+1)))
		return false
	}
	sb.WriteString(fmt.Sprintf("    %s --> done\n", id))
	return true
}

func writeOverlay(sb *strings.Builder, overlay *Overlay, total int) {
	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text for contrast regardless of the viewer's theme.
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	seen := make(map[int]bool)
	for _, step := range overlay.VisitedSteps {
		if step < 0 || step >= total || seen[step] {
			continue
		}
		seen[step] = true
		sb.WriteString(fmt.Sprintf("    class %s visited;\n", stepID(step)))
	}

	if overlay.CurrentStep >= 0 && overlay.CurrentStep < total {
		sb.WriteString(fmt.Sprintf("    class %s current;\n", stepID(overlay.CurrentStep)))
	}
}

// stepLabels collects jump anchors: label steps and named receives, keyed by
// name with the first definition winning, matching build semantics.
func stepLabels(sc *compiler.Script) map[string]int {
	labels := make(map[string]int)
	register := func(name string, i int) {
		if name == "" {
			return
		}
		if _, dup := labels[name]; !dup {
			labels[name] = i
		}
	}

	for i, step := range sc.Steps {
		kw, err := compiler.Keyword(step)
		if err != nil {
			continue
		}
		switch kw {
		case "receive":
			register(asString(step["receive"]), i)
		case "label":
			register(asString(step["label"]), i)
		}
	}
	return labels
}

func stepID(i int) string {
	return fmt.Sprintf("s%d", i+1)
}

func stepShape(kw string) (string, string) {
	switch kw {
	case "receive":
		return "[/", "/]"
	case "when":
		return "{", "}"
	case "label":
		return "[[", "]]"
	case "return", "fail":
		return "((", "))"
	default:
		return "[", "]"
	}
}

// stepText renders the node caption: the keyword plus whatever identifies the
// step at a glance.
func stepText(kw string, step map[string]any) string {
	switch kw {
	case "receive":
		text := "receive"
		if name := asString(step["receive"]); name != "" {
			text += " " + name
		}
		if limit, ok := intValue(step["limit"]); ok {
			text = fmt.Sprintf("%s <br/> limit %d", text, limit)
		}
		return escapeMermaid(text)

	case "send":
		if p := preview(step["send"]); p != "" {
			return escapeMermaid("send: " + p)
		}
		return "send"

	case "set":
		if m, ok := step["set"].(map[string]any); ok {
			if key := asString(m["key"]); key != "" {
				return escapeMermaid("set " + key)
			}
		}
		return "set"

	case "label":
		return escapeMermaid(asString(step["label"]))

	case "goto":
		return escapeMermaid("goto " + asString(step["goto"]))

	case "when":
		cond, _ := whenSpec(step)
		return escapeMermaid("when " + cond)

	default:
		return kw
	}
}

func whenSpec(step map[string]any) (key, target string) {
	m, ok := step["when"].(map[string]any)
	if !ok {
		return "", ""
	}
	return asString(m["key"]), asString(m["goto"])
}

// preview shortens a payload for display inside a node.
func preview(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > 30 {
		return string(r[:29]) + "…"
	}
	return s
}

// escapeMermaid keeps captions from breaking the quoted node syntax.
func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
