package ui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the dashboard on out until ctx is done or the user quits.
func Run(ctx context.Context, out io.Writer, model tea.Model) error {
	p := tea.NewProgram(model, tea.WithOutput(out))
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()
	_, err := p.Run()
	return err
}
