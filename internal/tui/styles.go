package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - keeping it minimal and accessible.
var (
	ColorPrimary   = lipgloss.Color("39")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorSuccess   = lipgloss.Color("34")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("240") // Dark gray
)

// Styles for CLI output.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSecondary).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// Symbols for visual feedback.
const (
	SymbolCheck      = "✓"
	SymbolCross      = "✗"
	SymbolArrowRight = "→"
	SymbolBullet     = "•"
)

// Success renders "✓ msg".
func Success(format string, args ...any) string {
	return SuccessStyle.Render(SymbolCheck + " " + fmt.Sprintf(format, args...))
}

// Failure renders "✗ msg".
func Failure(format string, args ...any) string {
	return ErrorStyle.Render(SymbolCross + " " + fmt.Sprintf(format, args...))
}

// Warning renders "! msg".
func Warning(format string, args ...any) string {
	return WarningStyle.Render("! " + fmt.Sprintf(format, args...))
}

// KeyValues renders aligned "key: value" lines. Pairs are kept in order.
func KeyValues(pairs ...[2]string) string {
	width := 0
	for _, kv := range pairs {
		if len(kv[0]) > width {
			width = len(kv[0])
		}
	}

	lines := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		label := LabelStyle.Render(fmt.Sprintf("%-*s", width+1, kv[0]+":"))
		lines = append(lines, label+" "+kv[1])
	}
	return strings.Join(lines, "\n")
}

// Table renders rows under a header with columns padded to a common width.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	render := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Render(cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	lines := []string{render(header, TitleStyle)}
	for _, row := range rows {
		lines = append(lines, render(row, lipgloss.NewStyle()))
	}
	return strings.Join(lines, "\n")
}
