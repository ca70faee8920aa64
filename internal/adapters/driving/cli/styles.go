package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette used for command output.
var (
	colourPrimary = lipgloss.Color("#7C3AED") // Purple
	colourMuted   = lipgloss.Color("#6C7086") // Medium gray
	colourSuccess = lipgloss.Color("#A6E3A1") // Green
	colourWarning = lipgloss.Color("#F9E2AF") // Yellow
	colourError   = lipgloss.Color("#F38BA8") // Red
)

// outputStyles are the lipgloss styles shared by all commands.
type outputStyles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

var styles = outputStyles{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colourPrimary),
	Label:   lipgloss.NewStyle().Foreground(colourMuted).Width(20),
	Muted:   lipgloss.NewStyle().Foreground(colourMuted),
	Success: lipgloss.NewStyle().Foreground(colourSuccess),
	Warning: lipgloss.NewStyle().Foreground(colourWarning),
	Error:   lipgloss.NewStyle().Foreground(colourError),
}

// field is one label/value row of a detail view.
type field struct {
	label string
	value string
}

// writeFields prints a title followed by aligned label/value rows.
func writeFields(w io.Writer, title string, fields []field) {
	fmt.Fprintln(w, styles.Title.Render(title))
	for _, f := range fields {
		fmt.Fprintf(w, "  %s %s\n", styles.Label.Render(f.label+":"), f.value)
	}
}

// writeTable prints rows under a header with columns padded to fit.
func writeTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return strings.TrimRight(strings.Join(padded, "  "), " ")
	}

	fmt.Fprintln(w, styles.Title.Render(line(header)))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}
