package compiler

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/espalier/pkg/dsl"
)

// receiveSpec carries the settings of a receive step.
type receiveSpec struct {
	Receive string            `mapstructure:"receive"`
	Limit   *int              `mapstructure:"limit"`
	Expects map[string]string `mapstructure:"expects"`
	SaveTo  string            `mapstructure:"save_to"`
	Undo    string            `mapstructure:"undo"`
	Redo    string            `mapstructure:"redo"`
}

type setSpec struct {
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

type whenSpec struct {
	Key  string `mapstructure:"key"`
	Goto string `mapstructure:"goto"`
}

// Compile parses a YAML script and builds the executable program. The
// fallback name is used when the script declares none, typically the file
// stem the script was read from.
func Compile(src []byte, fallbackName string) (*dsl.Program, error) {
	sc, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return sc.Build(fallbackName)
}

// Build turns a parsed script into an executable program. Structural errors
// (unknown keywords, unresolved labels, invalid limits) are reported with the
// 1-based step index scripts are written in.
func (s *Script) Build(fallbackName string) (*dsl.Program, error) {
	name := s.Name
	if name == "" {
		name = fallbackName
	}

	b := dsl.NewProgram(name)
	for i, step := range s.Steps {
		if err := appendStep(b, step); err != nil {
			return nil, fmt.Errorf("script %q step %d: %w", name, i+1, err)
		}
	}
	if s.OnError != "" {
		b.OnError(s.OnError)
	}
	return b.Build()
}

func appendStep(b *dsl.Builder, step map[string]any) error {
	kw, err := Keyword(step)
	if err != nil {
		return err
	}
	if kw != "receive" {
		for _, opt := range OptionKeywords {
			if _, ok := step[opt]; ok {
				return fmt.Errorf("%q only applies to receive steps", opt)
			}
		}
	}

	switch kw {
	case "receive":
		var spec receiveSpec
		if err := decode(step, &spec); err != nil {
			return err
		}
		opts := make([]dsl.ReceiveOption, 0, 5)
		if spec.Limit != nil {
			opts = append(opts, dsl.WithLimit(*spec.Limit))
		}
		if len(spec.Expects) > 0 {
			opts = append(opts, dsl.WithExpects(spec.Expects))
		}
		if spec.SaveTo != "" {
			opts = append(opts, dsl.WithSaveTo(spec.SaveTo))
		}
		if spec.Undo != "" {
			opts = append(opts, dsl.WithUndoNote(spec.Undo))
		}
		if spec.Redo != "" {
			opts = append(opts, dsl.WithRedoNote(spec.Redo))
		}
		b.Receive(spec.Receive, opts...)

	case "send":
		b.Send(step["send"])

	case "set":
		var spec setSpec
		if err := decode(step["set"], &spec); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		b.Set(spec.Key, spec.Value)

	case "label":
		label, err := stringValue(step, "label")
		if err != nil {
			return err
		}
		b.Label(label)

	case "goto":
		target, err := stringValue(step, "goto")
		if err != nil {
			return err
		}
		b.Goto(target)

	case "when":
		var spec whenSpec
		if err := decode(step["when"], &spec); err != nil {
			return fmt.Errorf("when: %w", err)
		}
		b.When(spec.Key, spec.Goto)

	case "return":
		b.Return(step["return"])

	case "fail":
		msg, err := stringValue(step, "fail")
		if err != nil {
			return err
		}
		b.Fail(msg)
	}
	return nil
}

// decode maps raw YAML values onto a spec struct. Unknown keys are an error
// so script typos surface at compile time instead of being silently dropped.
func decode(raw any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func stringValue(step map[string]any, kw string) (string, error) {
	v := step[kw]
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %T", kw, v)
	}
	return s, nil
}
