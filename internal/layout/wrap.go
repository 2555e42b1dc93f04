// Package layout wraps a book's words into rows of a fixed character width.
// Rows are derived from cached word lengths only; no text is measured.
package layout

import (
	"sort"

	"github.com/yuanying/epubrsvp/internal/book"
)

// Row is one wrapped visual line: the words [StartIndex, EndIndex).
// Index is the word index the row starts at.
type Row struct {
	Index      int `json:"index"`
	StartIndex int `json:"startIndex"`
	EndIndex   int `json:"endIndex"`
}

// Len returns the number of words on the row.
func (r Row) Len() int {
	return r.EndIndex - r.StartIndex
}

// Contains reports whether word idx is on the row.
func (r Row) Contains(idx int) bool {
	return idx >= r.StartIndex && idx < r.EndIndex
}

// Wrap greedily packs words, given their lengths, into rows of at most
// maxChars columns. Each word costs its length plus one separator. A word
// longer than maxChars gets a row of its own. maxChars <= 0 yields no rows.
func Wrap(lengths []int, maxChars int) []Row {
	return wrapFrom(nil, lengths, 0, maxChars)
}

// WrapWords wraps words measured by book.WordLength.
func WrapWords(words []string, maxChars int) []Row {
	lengths := make([]int, len(words))
	for i, w := range words {
		lengths[i] = book.WordLength(w)
	}
	return Wrap(lengths, maxChars)
}

// WrapParagraphs wraps each paragraph separately so that no row spans a
// paragraph boundary. Word indexes stay absolute.
func WrapParagraphs(paragraphs []book.Paragraph, maxChars int) []Row {
	if maxChars <= 0 {
		return nil
	}
	var rows []Row
	for _, p := range paragraphs {
		rows = wrapFrom(rows, p.Lengths, p.Start, maxChars)
	}
	return rows
}

// LineCounts returns the number of wrapped lines each paragraph occupies.
func LineCounts(paragraphs []book.Paragraph, maxChars int) []int {
	counts := make([]int, len(paragraphs))
	if maxChars <= 0 {
		return counts
	}
	for i, p := range paragraphs {
		counts[i] = Lines(p.Lengths, maxChars)
	}
	return counts
}

// Lines counts the rows Wrap would produce without building them.
func Lines(lengths []int, maxChars int) int {
	if maxChars <= 0 || len(lengths) == 0 {
		return 0
	}
	lines, buffer := 1, 0
	for _, n := range lengths {
		if buffer > 0 && buffer+n+1 > maxChars {
			lines++
			buffer = 0
		}
		buffer += n + 1
	}
	return lines
}

func wrapFrom(rows []Row, lengths []int, offset, maxChars int) []Row {
	if maxChars <= 0 {
		return rows
	}
	start, buffer := 0, 0
	for i, n := range lengths {
		if buffer > 0 && buffer+n+1 > maxChars {
			rows = append(rows, Row{Index: offset + start, StartIndex: offset + start, EndIndex: offset + i})
			start, buffer = i, 0
		}
		buffer += n + 1
	}
	if start < len(lengths) {
		rows = append(rows, Row{Index: offset + start, StartIndex: offset + start, EndIndex: offset + len(lengths)})
	}
	return rows
}

// RowAt returns the index of the row holding word idx: the first row whose
// start exceeds idx, minus one. Indexes past the end map to the last row.
// It returns -1 when there are no rows.
func RowAt(rows []Row, idx int) int {
	if len(rows) == 0 {
		return -1
	}
	i := sort.Search(len(rows), func(i int) bool {
		return rows[i].StartIndex > idx
	})
	return max(i-1, 0)
}
