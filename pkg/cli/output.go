package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
)

// OutputFormat selects how structured results are rendered.
type OutputFormat string

const (
	// FormatYAML renders as YAML (the default for terminals).
	FormatYAML OutputFormat = "yaml"
	// FormatJSON renders as indented JSON.
	FormatJSON OutputFormat = "json"
)

// Output writes a structured result to w in the given format.
func Output(w io.Writer, result any, format OutputFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatYAML, "":
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("cli: format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("cli: unsupported output format: %s", format)
	}
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff9f"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f2cc60"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b6b"))
)

// PrintSuccess prints a success message with a checkmark.
func PrintSuccess(format string, args ...any) {
	fmt.Println(successStyle.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message.
func PrintWarning(format string, args ...any) {
	fmt.Println(warnStyle.Render("⚠") + " " + fmt.Sprintf(format, args...))
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}
