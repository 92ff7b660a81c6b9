// Package validator statically checks parsed scripts. Building a script
// stops at the first structural error; Check instead collects every problem
// it can find so authors fix a file in one pass. It also reports what a
// build tolerates, such as steps no jump or fallthrough can ever reach.
package validator

import (
	"fmt"
	"sort"

	"github.com/aretw0/espalier/internal/compiler"
	"github.com/aretw0/espalier/pkg/schema"
)

// Issue is a single problem found in a script. Step is the 1-based index of
// the offending step; zero means the issue applies to the script as a whole.
type Issue struct {
	Step    int
	Message string
}

func (i Issue) String() string {
	if i.Step == 0 {
		return i.Message
	}
	return fmt.Sprintf("step %d: %s", i.Step, i.Message)
}

// stepInfo is the skeleton the reachability walk runs over.
type stepInfo struct {
	kw      string
	target  string
	reached bool
}

// Check inspects a parsed script and returns every problem found, ordered by
// step. An empty result means the script builds and has no dead steps.
func Check(sc *compiler.Script) []Issue {
	var issues []Issue
	add := func(step int, format string, args ...any) {
		issues = append(issues, Issue{Step: step, Message: fmt.Sprintf(format, args...)})
	}

	if len(sc.Steps) == 0 {
		add(0, "script has no steps")
		return issues
	}

	infos := make([]stepInfo, len(sc.Steps))
	labels := make(map[string]int)
	registerLabel := func(step int, name string) {
		if name == "" {
			return
		}
		if prev, dup := labels[name]; dup {
			add(step, "duplicate label %q (first defined at step %d)", name, prev+1)
			return
		}
		labels[name] = step - 1
	}

	for i, step := range sc.Steps {
		n := i + 1
		kw, err := compiler.Keyword(step)
		if err != nil {
			add(n, "%v", err)
			continue
		}
		infos[i].kw = kw

		if kw != "receive" {
			for _, opt := range compiler.OptionKeywords {
				if _, ok := step[opt]; ok {
					add(n, "%q only applies to receive steps", opt)
				}
			}
		}

		switch kw {
		case "receive":
			label, _ := step["receive"].(string)
			registerLabel(n, label)
			if v, ok := step["limit"]; ok {
				limit, isInt := intValue(v)
				switch {
				case !isInt:
					add(n, "limit: expected an integer, got %T", v)
				case limit < -1:
					add(n, "limit %d is invalid (-1 means unlimited)", limit)
				}
			}
			if v, ok := step["expects"]; ok {
				checkExpects(add, n, v)
			}

		case "label":
			name, _ := step["label"].(string)
			if name == "" {
				add(n, "label: name must not be empty")
				continue
			}
			registerLabel(n, name)

		case "goto":
			target, _ := step["goto"].(string)
			if target == "" {
				add(n, "goto: target must not be empty")
				continue
			}
			infos[i].target = target

		case "when":
			m, ok := step["when"].(map[string]any)
			if !ok {
				add(n, "when: expected a map with key and goto")
				continue
			}
			if key, _ := m["key"].(string); key == "" {
				add(n, "when: key must not be empty")
			}
			target, _ := m["goto"].(string)
			if target == "" {
				add(n, "when: goto target must not be empty")
				continue
			}
			infos[i].target = target

		case "set":
			m, ok := step["set"].(map[string]any)
			if !ok {
				add(n, "set: expected a map with key and value")
				continue
			}
			if key, _ := m["key"].(string); key == "" {
				add(n, "set: key must not be empty")
			}
		}
	}

	for i, info := range infos {
		if info.target == "" {
			continue
		}
		if _, ok := labels[info.target]; !ok {
			add(i+1, "jumps to unknown label %q", info.target)
		}
	}
	if sc.OnError != "" {
		if _, ok := labels[sc.OnError]; !ok {
			add(0, "error handler label %q not found", sc.OnError)
		}
	}

	markReachable(infos, labels, sc.OnError)
	for i := range infos {
		if infos[i].kw != "" && !infos[i].reached {
			add(i+1, "unreachable step")
		}
	}

	sort.SliceStable(issues, func(a, b int) bool { return issues[a].Step < issues[b].Step })
	return issues
}

// markReachable walks the control flow from the first step, following
// fallthrough, jumps and the error handler entry.
func markReachable(infos []stepInfo, labels map[string]int, onError string) {
	var visit func(i int)
	visit = func(i int) {
		for i >= 0 && i < len(infos) && !infos[i].reached {
			infos[i].reached = true
			switch infos[i].kw {
			case "goto":
				pc, ok := labels[infos[i].target]
				if !ok {
					return
				}
				i = pc
			case "return", "fail":
				return
			case "when":
				if pc, ok := labels[infos[i].target]; ok {
					visit(pc)
				}
				i++
			default:
				i++
			}
		}
	}

	visit(0)
	if onError != "" {
		if pc, ok := labels[onError]; ok {
			visit(pc)
		}
	}
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

func checkExpects(add func(int, string, ...any), step int, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		add(step, "expects: expected a map of field name to type string")
		return
	}
	for field, tv := range m {
		ts, ok := tv.(string)
		if !ok {
			add(step, "expects.%s: expected a type string, got %T", field, tv)
			continue
		}
		if _, err := schema.ParseType(ts); err != nil {
			add(step, "expects.%s: %v", field, err)
		}
	}
}
