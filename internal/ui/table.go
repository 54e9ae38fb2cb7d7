package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

const tableCellMaxWidth = 50
const tableCellEllipsis = "..."

var tableHeaderStyle = lipgloss.NewStyle().Bold(true)

// TableBuilder collects rows and renders a formatted table.
type TableBuilder struct {
	headers []string
	rows    [][]string
}

// NewTableBuilder returns a builder with preallocated rows.
func NewTableBuilder(headers []string, capacity int) *TableBuilder {
	return &TableBuilder{headers: headers, rows: make([][]string, 0, capacity)}
}

// AddRow appends a row to the table. Cells longer than the column cap are truncated.
func (builder *TableBuilder) AddRow(cells ...string) {
	row := make([]string, len(cells))
	for i, cell := range cells {
		row[i] = TruncateTableCell(cell)
	}
	builder.rows = append(builder.rows, row)
}

// Len returns the number of rows added so far.
func (builder *TableBuilder) Len() int {
	return len(builder.rows)
}

// String renders the table output.
func (builder *TableBuilder) String() string {
	return FormatTable(builder.headers, builder.rows)
}

// FormatTable renders headers and rows as an aligned table.
// Headers are bold when the terminal supports ANSI styling.
func FormatTable(headers []string, rows [][]string) string {
	normalizedHeaders := make([]string, len(headers))
	for i, header := range headers {
		normalizedHeaders[i] = normalizeTableCell(header)
	}

	widths := make([]int, len(normalizedHeaders))
	for i, header := range normalizedHeaders {
		widths[i] = displayWidth(header)
	}

	normalizedRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		normalizedRow := make([]string, len(row))
		for i, cell := range row {
			normalizedRow[i] = normalizeTableCell(cell)
			if i < len(widths) && displayWidth(normalizedRow[i]) > widths[i] {
				widths[i] = displayWidth(normalizedRow[i])
			}
		}
		normalizedRows = append(normalizedRows, normalizedRow)
	}

	var builder strings.Builder
	writeRow := func(row []string, header bool) {
		for i, cell := range row {
			cellWidth := displayWidth(cell)
			if header && ANSIEnabled() {
				builder.WriteString(tableHeaderStyle.Render(cell))
			} else {
				builder.WriteString(cell)
			}
			if i == len(row)-1 {
				builder.WriteByte('\n')
				continue
			}
			padding := 0
			if i < len(widths) {
				padding = widths[i] - cellWidth
			}
			builder.WriteString(strings.Repeat(" ", padding+2))
		}
	}

	writeRow(normalizedHeaders, true)
	for _, row := range normalizedRows {
		writeRow(row, false)
	}

	return builder.String()
}

// TruncateTableCell limits cell width while preserving visible characters.
func TruncateTableCell(value string) string {
	value = normalizeTableCell(value)
	if displayWidth(value) <= tableCellMaxWidth {
		return value
	}

	max := tableCellMaxWidth - displayWidth(tableCellEllipsis)
	var builder strings.Builder
	visible := 0
	for _, r := range stripANSICodes(value) {
		if visible >= max {
			break
		}
		builder.WriteRune(r)
		visible++
	}
	return builder.String() + tableCellEllipsis
}

func displayWidth(value string) int {
	return utf8.RuneCountInString(stripANSICodes(value))
}

func normalizeTableCell(value string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(value)
}

func stripANSICodes(input string) string {
	var builder strings.Builder
	inEscape := false
	for i := 0; i < len(input); i++ {
		char := input[i]
		if inEscape {
			if char == 'm' {
				inEscape = false
			}
			continue
		}
		if char == '\x1b' {
			inEscape = true
			continue
		}
		builder.WriteByte(char)
	}
	return builder.String()
}
