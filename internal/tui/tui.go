// Package tui implements the terminal user interface for browsing and filtering the
// environment the hellocgi page would report.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.followtheprocess.codes/hellocgi/internal/page"
	"go.followtheprocess.codes/hellocgi/internal/tui/components/list"
)

// Run runs the TUI, this is what happens when users call `hellocgi browse`.
//
// It returns the variable picked by the user and whether one was picked at all, quitting
// without picking is not an error.
func Run(env page.Env) (page.Var, bool, error) {
	model := list.New(fmt.Sprintf("Environment (%d variables)", len(env)), env)

	tm, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return page.Var{}, false, err
	}

	final, ok := tm.(list.Model)
	if !ok {
		return page.Var{}, false, fmt.Errorf("tui error, final model was not as expected: %T", tm)
	}

	selected, ok := final.Selected()
	return selected, ok, nil
}
