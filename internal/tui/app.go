package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chaz8081/invisa-link/internal/ble"
)

// Run starts the watch view and blocks until the user quits.
func Run(session Session, events <-chan ble.Event) error {
	m := NewModel(session, events)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}

	return nil
}
