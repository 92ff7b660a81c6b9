package espalier

import _ "embed"

// Version is the release version, embedded from the VERSION file at the
// repository root. It carries a trailing newline; trim before display.
//
//go:embed VERSION
var Version string
