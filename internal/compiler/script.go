// Package compiler turns YAML scripts into executable dsl programs.
//
// A script is a flat list of steps, one keyword per step:
//
//	name: trip
//	on_error: recover
//	steps:
//	  - receive: start
//	    expects:
//	      city: string
//	    save_to: request
//	    undo: "forgot about {{request.city}}"
//	  - send: "planning a trip to {{request.city}}"
//	  - goto: start
//	  - label: recover
//	  - send: "something went wrong: {{error}}"
//	  - return:
//
// The compiler only resolves structure. Templates in string values are kept
// verbatim and rendered at run time by the dsl package.
package compiler

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Script is the parsed form of a YAML script file. Steps stay as raw maps
// until Build so keyword detection can distinguish "absent" from "null".
type Script struct {
	Name    string           `yaml:"name"`
	OnError string           `yaml:"on_error"`
	Steps   []map[string]any `yaml:"steps"`
}

// Parse decodes a YAML script without building it. Use Build (or Compile)
// to obtain the executable program.
func Parse(src []byte) (*Script, error) {
	var sc Script
	if err := yaml.Unmarshal(src, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	return &sc, nil
}

// StepKeywords lists the step keywords in documentation order. Exactly one
// must appear in every step.
var StepKeywords = []string{"receive", "send", "set", "label", "goto", "when", "return", "fail"}

// OptionKeywords are the extra keys a receive step may carry. They are
// invalid on any other step.
var OptionKeywords = []string{"limit", "expects", "save_to", "undo", "redo"}

// Keyword returns the step keyword of a raw step, or an error when the step
// carries none or more than one.
func Keyword(step map[string]any) (string, error) {
	found := ""
	for _, kw := range StepKeywords {
		if _, ok := step[kw]; !ok {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("ambiguous step: both %q and %q given", found, kw)
		}
		found = kw
	}
	if found == "" {
		return "", fmt.Errorf("missing step keyword (one of %v)", StepKeywords)
	}
	return found, nil
}
