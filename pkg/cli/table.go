package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))

// Table is a simple left-aligned text table.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render formats the table with padded columns and a styled header row.
func (t Table) Render() string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range t.Headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i])))
		if i < len(t.Headers)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteByte('\n')
	for _, row := range t.Rows {
		for i, cell := range row {
			b.WriteString(pad(cell, widths[i]))
			if i < len(row)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

// Bar renders a proportional bar of at most width cells, for histogram
// rows. A non-zero count always gets at least one cell.
func Bar(count, max, width int) string {
	if max <= 0 || count <= 0 || width <= 0 {
		return ""
	}
	n := count * width / max
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}
