// Package output renders CLI results for humans: colored status lines,
// indented JSON and aligned tables. Log files get the structured slog
// stream instead; this package is only for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

func Success(format string, a ...any) {
	fmt.Fprintln(os.Stdout, successColor.Sprintf("✓ "+format, a...))
}

func Error(format string, a ...any) {
	fmt.Fprintln(os.Stderr, errorColor.Sprintf("✗ "+format, a...))
}

func Info(format string, a ...any) {
	fmt.Fprintln(os.Stdout, infoColor.Sprintf(format, a...))
}

func Warn(format string, a ...any) {
	fmt.Fprintln(os.Stdout, warnColor.Sprintf("⚠ "+format, a...))
}

func JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var header strings.Builder
	for i, h := range t.headers {
		header.WriteString(headerColor.Sprintf("%-*s  ", widths[i], h))
	}
	fmt.Fprintln(os.Stdout, header.String())

	for i := range t.headers {
		fmt.Fprint(os.Stdout, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(os.Stdout)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(os.Stdout, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(os.Stdout)
	}
}
