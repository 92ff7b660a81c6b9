// Package tui holds the terminal presentation pieces of the CLI: the banner
// and the markdown renderer applied to program payloads.
package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a markdown renderer for payload text shown in the
// terminal. Styling adapts to the terminal background; if no renderer can be
// built the text passes through unchanged.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return r.Render
}
