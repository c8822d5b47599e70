package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"quotewatch/internal/format"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
	scheme       format.Scheme
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(),
		scheme:       format.DefaultScheme,
	}
}

// newOutputFor creates an Output with an explicit writer, used by watch and tests.
func newOutputFor(w io.Writer, jsonMode, colorEnabled bool, scheme format.Scheme) *Output {
	return &Output{writer: w, jsonMode: jsonMode, colorEnabled: colorEnabled, scheme: scheme}
}

// isTerminal checks if stdout is a terminal.
func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// WithScheme sets the gain/loss colors. Color is also disabled when the
// display config says so.
func (o *Output) WithScheme(scheme format.Scheme, colorEnabled bool) *Output {
	o.scheme = scheme
	o.colorEnabled = o.colorEnabled && colorEnabled
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.line(color.New(color.FgGreen), format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.line(color.New(color.FgRed), format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.line(color.New(color.FgYellow), format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.line(color.New(color.FgCyan), format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.line(color.New(color.Bold), format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.line(color.New(color.Faint), format, args...)
}

func (o *Output) line(c *color.Color, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.paint(c, fmt.Sprintf(format, args...)))
}

func (o *Output) paint(c *color.Color, text string) string {
	if !o.colorEnabled {
		return text
	}
	c.EnableColor()
	return c.Sprint(text)
}

// Named returns text in a color named by the display scheme.
func (o *Output) Named(name, text string) string {
	return o.paint(colorByName(name), text)
}

// Directional colors text by the sign of change using the scheme.
func (o *Output) Directional(change float64, text string) string {
	return o.Named(o.scheme.ColorFor(change), text)
}

// BoldText returns bold text.
func (o *Output) BoldText(text string) string {
	return o.paint(color.New(color.Bold), text)
}

// DimText returns dimmed text.
func (o *Output) DimText(text string) string {
	return o.paint(color.New(color.Faint), text)
}

func colorByName(name string) *color.Color {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "green":
		return color.New(color.FgGreen)
	case "red":
		return color.New(color.FgRed)
	case "yellow":
		return color.New(color.FgYellow)
	case "blue":
		return color.New(color.FgBlue)
	case "magenta":
		return color.New(color.FgMagenta)
	case "cyan":
		return color.New(color.FgCyan)
	case "white":
		return color.New(color.FgWhite)
	case "hi-green":
		return color.New(color.FgHiGreen)
	case "hi-red":
		return color.New(color.FgHiRed)
	default:
		return color.New(color.Reset)
	}
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		output:  output,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				if n := visibleLen(cell); n > widths[i] {
					widths[i] = n
				}
			}
		}
	}

	t.printRow(t.headers, widths, true)
	t.printSeparator(widths)
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	var parts []string
	for i, cell := range cells {
		if i < len(widths) {
			padding := widths[i] - visibleLen(cell)
			if padding < 0 {
				padding = 0
			}
			padded := cell + strings.Repeat(" ", padding)
			if isHeader {
				padded = t.output.BoldText(padded)
			}
			parts = append(parts, padded)
		}
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (t *Table) printSeparator(widths []int) {
	var parts []string
	for _, w := range widths {
		parts = append(parts, strings.Repeat("─", w))
	}
	t.output.Println(t.output.DimText(strings.Join(parts, "──")))
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}
