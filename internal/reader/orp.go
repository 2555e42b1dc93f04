// Package reader computes what the RSVP and paginated views show for a
// word index, and runs a playback session that keeps both views on the
// same stored position.
package reader

import (
	"strings"
	"unicode"
)

// ORP returns the 1-based optimal recognition point of a word: the
// character the eye should fix on. Punctuation around the word is ignored.
func ORP(word string) int {
	return orpForLength(len([]rune(trimWord(word))))
}

func orpForLength(n int) int {
	if n <= 1 {
		return 1
	}
	return (n-1+3)/4 + 1
}

// trimWord strips leading and trailing runes that are neither letters nor
// digits.
func trimWord(word string) string {
	return strings.TrimFunc(strings.TrimSpace(word), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Split is a word cut around its pivot character, padded on the left so
// that pivots of successive words line up in a fixed column.
type Split struct {
	Pad    int    `json:"pad"`
	Before string `json:"before"`
	Pivot  string `json:"pivot"`
	After  string `json:"after"`
}

// String renders the split with no-break-space padding.
func (s Split) String() string {
	return strings.Repeat("\u00a0", s.Pad) + s.Before + s.Pivot + s.After
}

// PivotColumn returns the 0-based column of the pivot character for a
// display maxChars wide.
func PivotColumn(maxChars int) int {
	if maxChars <= 0 {
		return 0
	}
	return orpForLength(maxChars)
}

// SplitORP cuts word at its ORP for a display maxChars wide. The word is
// truncated to fit; maxChars <= 0 disables padding and truncation.
func SplitORP(word string, maxChars int) Split {
	r := []rune(strings.TrimSpace(word))
	trimmed := []rune(trimWord(word))
	orp := orpForLength(len(trimmed))

	maxOffset := orp
	if maxChars > 0 {
		maxOffset = PivotColumn(maxChars) + 1
		if limit := maxChars - (maxOffset - orpForLength(maxChars)); limit > 0 && len(r) > limit {
			r = r[:limit]
		}
	}
	if len(r) == 0 {
		return Split{Pad: max(maxOffset-1, 0)}
	}

	// Shift the pivot past any leading punctuation.
	lead := 0
	for lead < len(r) && !unicode.IsLetter(r[lead]) && !unicode.IsDigit(r[lead]) {
		lead++
	}
	if lead == len(r) {
		lead = 0
	}
	pivot := min(lead+orp-1, len(r)-1)

	return Split{
		Pad:    max(maxOffset-(pivot+1), 0),
		Before: string(r[:pivot]),
		Pivot:  string(r[pivot]),
		After:  string(r[pivot+1:]),
	}
}

// SplitMiddle cuts word around its middle character, or its middle two
// characters for some even lengths.
func SplitMiddle(word string) Split {
	r := []rune(word)
	n := len(r)
	if n == 0 {
		return Split{}
	}
	if n <= 2 {
		return Split{Pivot: word}
	}
	mid := n / 2
	if n%2 == 0 && mid%2 == 0 {
		return Split{Before: string(r[:mid-1]), Pivot: string(r[mid-1 : mid+1]), After: string(r[mid+1:])}
	}
	return Split{Before: string(r[:mid]), Pivot: string(r[mid]), After: string(r[mid+1:])}
}
