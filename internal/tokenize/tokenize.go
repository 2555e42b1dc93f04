// Package tokenize turns paragraph text into the word sequence flashed by
// the RSVP view.
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NoBreakSpace glues an em-dash to the word that follows it.
const NoBreakSpace = '\u00a0'

// Normalize prepares paragraph text for splitting: NFC composition,
// newlines as plain spaces, a break after ?/! runs that run straight into
// the next word, and an em-dash glued to the next word.
func Normalize(text string) string {
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text) + 8)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\r' || r == '\n':
			b.WriteRune(' ')
		case r == '—' && i+1 < len(runes) && runes[i+1] == ' ':
			b.WriteRune(r)
			b.WriteRune(NoBreakSpace)
			i++
		case r == '?' || r == '!':
			b.WriteRune(r)
			if i+1 < len(runes) {
				next := runes[i+1]
				if unicode.IsLetter(next) || unicode.IsDigit(next) {
					b.WriteRune(' ')
				}
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Words normalizes text and splits it on whitespace. No-break spaces do not
// split. Empty tokens are dropped.
func Words(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), isBreak)
	words := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, isBreak)
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// Paragraph splits one block of text into words; nil when it holds none.
func Paragraph(text string) []string {
	words := Words(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

func isBreak(r rune) bool {
	return r != NoBreakSpace && unicode.IsSpace(r)
}
