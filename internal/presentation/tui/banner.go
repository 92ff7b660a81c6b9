package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"                      _ _",
	"  ___  ___ _ __   __ _| (_) ___ _ __",
	" / _ \\/ __| '_ \\ / _` | | |/ _ \\ '__|",
	"|  __/\\__ \\ |_) | (_| | | |  __/ |",
	" \\___||___/ .__/ \\__,_|_|_|\\___|_|",
	"          |_|",
}

// Green-to-sky gradient, one stop per art line.
var bannerColors = []string{
	"#86efac", "#6ee7b7", "#5eead4", "#67e8f9", "#7dd3fc", "#93c5fd",
}

// PrintBanner outputs the espalier ASCII banner followed by the release
// version. An empty version prints the art alone.
func PrintBanner(version string) {
	p := termenv.ColorProfile()

	fmt.Println()
	for i, line := range bannerLines {
		fmt.Println(termenv.String(line).Foreground(p.Color(bannerColors[i])))
	}
	if version != "" {
		fmt.Println(termenv.String("  " + version).Faint())
	}
	fmt.Println()
}
