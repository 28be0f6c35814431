// Package theme provides lipgloss colour palettes for the hellocgi TUI, taken from
// the Catppuccin themes.
//
// See https://catppuccin.com/palette/.
package theme

import "github.com/charmbracelet/lipgloss"

// Palette is the small set of colours the TUI draws with.
type Palette struct {
	Accent  lipgloss.Color // Titles and the selected item
	Text    lipgloss.Color // Normal item text
	Subtext lipgloss.Color // Item descriptions
	Crust   lipgloss.Color // Text drawn on top of Accent
}

// CatppuccinMacchiato is the dark palette.
var CatppuccinMacchiato = Palette{
	Accent:  lipgloss.Color("#c6a0f6"), // Mauve
	Text:    lipgloss.Color("#cad3f5"),
	Subtext: lipgloss.Color("#b8c0e0"), // Subtext1
	Crust:   lipgloss.Color("#181926"),
}

// CatppuccinLatte is the light palette.
var CatppuccinLatte = Palette{
	Accent:  lipgloss.Color("#8839ef"), // Mauve
	Text:    lipgloss.Color("#4c4f69"),
	Subtext: lipgloss.Color("#5c5f77"), // Subtext1
	Crust:   lipgloss.Color("#dce0e8"),
}

// Default returns the palette to use given whether the terminal has a dark background.
func Default(dark bool) Palette {
	if dark {
		return CatppuccinMacchiato
	}
	return CatppuccinLatte
}
