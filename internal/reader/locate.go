package reader

import (
	"fmt"

	"github.com/yuanying/epubrsvp/internal/layout"
)

// Locate returns the row and column of word idx in the wrapped rows, for
// scrolling the paginated view and highlighting the current word. It
// returns (-1, -1) when there are no rows.
func Locate(rows []layout.Row, idx int) (row, col int) {
	row = layout.RowAt(rows, idx)
	if row < 0 {
		return -1, -1
	}
	r := rows[row]
	col = idx - r.StartIndex
	if col >= r.Len() {
		col = r.Len() - 1
	}
	return row, max(col, 0)
}

// ResolveClick converts a click on word col of row into an absolute word
// index.
func ResolveClick(rows []layout.Row, row, col int) (int, error) {
	if row < 0 || row >= len(rows) {
		return 0, fmt.Errorf("row %d out of range [0, %d)", row, len(rows))
	}
	r := rows[row]
	if col < 0 || col >= r.Len() {
		return 0, fmt.Errorf("column %d out of range [0, %d) on row %d", col, r.Len(), row)
	}
	return r.StartIndex + col, nil
}
