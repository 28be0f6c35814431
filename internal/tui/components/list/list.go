// Package list implements a simple bubbletea list component to pick environment variables.
package list

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.followtheprocess.codes/hellocgi/internal/page"
	"go.followtheprocess.codes/hellocgi/internal/tui/theme"
)

// Model is the list tea Model.
type Model struct {
	l        list.Model // The base list bubble
	selected page.Var   // The selected variable
	picked   bool       // Whether anything was selected
}

// New returns a new [Model].
func New(title string, env page.Env) Model {
	items := make([]list.Item, 0, len(env))
	for _, v := range env {
		items = append(items, v)
	}

	palette := theme.Default(lipgloss.HasDarkBackground())

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(palette.Accent).
		BorderForeground(palette.Accent)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(palette.Subtext).
		BorderForeground(palette.Accent)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(palette.Text)

	l := list.New(items, delegate, 0, 0)
	l.Title = title
	l.Styles.Title = lipgloss.NewStyle().
		Background(palette.Accent).
		Foreground(palette.Crust).
		Padding(0, 1)

	return Model{
		l: l,
	}
}

// Init helps implement [tea.Model] for [Model].
func (m Model) Init() tea.Cmd {
	return nil
}

// Update updates the UI in response to messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Let the filter input have q and enter while the user is typing
		if m.l.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if v, ok := m.l.SelectedItem().(page.Var); ok {
				m.selected = v
				m.picked = true
			}

			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.l.SetSize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd

	m.l, cmd = m.l.Update(msg)

	return m, cmd
}

// View renders the UI to the user.
func (m Model) View() string {
	return m.l.View()
}

// Selected returns the picked variable and whether one was picked.
func (m Model) Selected() (page.Var, bool) {
	return m.selected, m.picked
}
