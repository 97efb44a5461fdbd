package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/workitems-go/internal/workitems"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(w io.Writer, quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// outputFormat is the rendering chosen by --json / --yaml.
type outputFormat int

const (
	formatTable outputFormat = iota
	formatJSON
	formatYAML
)

// Format returns the output format selected by the flags.
func (f CLIFlags) Format() outputFormat {
	switch {
	case f.JSON:
		return formatJSON
	case f.YAML:
		return formatYAML
	default:
		return formatTable
	}
}

// writeStructured encodes v as JSON or YAML. It reports false for
// formatTable so callers fall through to their table rendering.
func writeStructured(w io.Writer, format outputFormat, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(v); err != nil {
			return true, fmt.Errorf("encoding JSON output: %w", err)
		}

		return true, nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return true, fmt.Errorf("encoding YAML output: %w", err)
		}

		if err := enc.Close(); err != nil {
			return true, fmt.Errorf("encoding YAML output: %w", err)
		}

		return true, nil
	default:
		return false, nil
	}
}

// maxTitleWidth caps the title column of work item tables.
const maxTitleWidth = 60

var summaryHeaders = []string{"ID", "TYPE", "STATE", "ASSIGNED TO", "CHANGED", "TITLE"}

func summaryRow(s *workitems.Summary) []string {
	changed := ""
	if !s.ChangedAt.IsZero() {
		changed = formatTime(s.ChangedAt)
	}

	return []string{
		strconv.Itoa(s.ID),
		s.Type,
		s.State,
		s.AssignedTo,
		changed,
		truncate(s.Title, maxTitleWidth),
	}
}

// printSummaries renders work items in the selected format.
func printSummaries(w io.Writer, format outputFormat, items []workitems.Summary) error {
	if done, err := writeStructured(w, format, items); done {
		return err
	}

	rows := make([][]string, 0, len(items))
	for i := range items {
		rows = append(rows, summaryRow(&items[i]))
	}

	printTable(w, summaryHeaders, rows)

	return nil
}

// printNames renders a flat list of names, one per line.
func printNames(w io.Writer, format outputFormat, names []string) error {
	if done, err := writeStructured(w, format, names); done {
		return err
	}

	for _, n := range names {
		fmt.Fprintln(w, n)
	}

	return nil
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Local().Format("Jan _2 15:04")
	}

	return t.Local().Format("Jan _2  2006")
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	if n <= 3 {
		return string(r[:n])
	}

	return string(r[:n-3]) + "..."
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}

	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last cell is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = cell + strings.Repeat(" ", widths[i]-len([]rune(cell)))
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
