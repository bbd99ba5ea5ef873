package repl

import (
	"strings"
	"unicode/utf8"

	"github.com/jbdura/settlement-project/pkg/types"
)

// renderTable lays out rows as aligned columns in projection order, with a
// header line and a full-width dash separator. Cells render via
// types.Value.String, so NULL appears literally and timestamps use the
// display layout. A column absent from a row renders as NULL.
func renderTable(columns []string, rows []types.Row) string {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = utf8.RuneCountInString(col)
	}

	cells := make([][]string, len(rows))
	for ri, row := range rows {
		line := make([]string, len(columns))
		for ci, col := range columns {
			line[ci] = row[col].String()
			if n := utf8.RuneCountInString(line[ci]); n > widths[ci] {
				widths[ci] = n
			}
		}
		cells[ri] = line
	}

	var b strings.Builder
	writeRow := func(line []string) {
		for i, cell := range line {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(cell)
			// The last column carries no padding, keeping lines free of
			// trailing spaces.
			if i < len(line)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
			}
		}
		b.WriteByte('\n')
	}

	writeRow(columns)
	b.WriteString(strings.Repeat("-", rowWidth(widths)))
	b.WriteByte('\n')
	for _, line := range cells {
		writeRow(line)
	}
	return b.String()
}

// rowWidth is the rendered width of a fully padded row: every column width
// plus the " | " between each adjacent pair.
func rowWidth(widths []int) int {
	total := 3 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	return total
}
