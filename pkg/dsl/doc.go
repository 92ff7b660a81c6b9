/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically
constructing espalier programs.

It allows developers to define suspendable, forkable workflows using a
type-safe, fluent builder pattern instead of relying on external YAML or
Markdown scripts. This is particularly useful for dynamic program generation,
unit testing, and leveraging IDE autocompletion and type-checking.

A built program is a step table: every Receive marks a suspension point where
the driver can fork the computation, and everything between two receives runs
within a single resumption. Templates in sends, sets and notes interpolate
{{dotted.paths}} against the program's locals; the most recent event is
always available as {{event.type}} and {{event.payload}}.

Example usage:

	program, err := dsl.NewProgram("guest-book").
		Send("Who goes there?").
		Receive("wait",
			dsl.WithLimit(3),
			dsl.WithExpects(map[string]string{"name": "string"}),
			dsl.WithSaveTo("visitor"),
			dsl.WithUndoNote("forgot {{visitor.name}}"),
		).
		Send("Welcome, {{visitor.name}}!").
		Goto("wait").
		Build()

	// The resulting program can be handed to espalier.NewDriver.
*/
package dsl
