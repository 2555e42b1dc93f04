// Package book holds the persisted shapes of an imported book: the library
// entry, the word payload and its paragraph index.
package book

import (
	"sort"
	"time"

	"github.com/mattn/go-runewidth"
)

// Entry is a book as listed in the library.
type Entry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Creator     string    `json:"creator"`
	HasCover    bool      `json:"hasCover"`
	CoverType   string    `json:"coverType,omitempty"`
	TotalWords  int       `json:"totalWords"`
	Language    string    `json:"language,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Description string    `json:"description,omitempty"`
	Subjects    []string  `json:"subjects,omitempty"`
	Published   time.Time `json:"published,omitzero"`
	BlurHash    string    `json:"blurHash,omitempty"`
	Source      string    `json:"source,omitempty"` // imported file name
	AddedAt     time.Time `json:"addedAt"`
}

// Paragraph is one row of the paragraph index: the offset of its first
// word in the book and the display width of each of its words.
type Paragraph struct {
	Start   int   `json:"start"`
	Lengths []int `json:"lengths"`
}

// End returns the index one past the paragraph's last word.
func (p Paragraph) End() int {
	return p.Start + len(p.Lengths)
}

// Payload is the immutable word content of a book.
type Payload struct {
	Words      []string    `json:"words"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Build flattens paragraphs into a payload, recording each paragraph's
// start offset and word widths. Empty paragraphs are dropped.
func Build(paragraphs [][]string) *Payload {
	p := &Payload{Words: []string{}, Paragraphs: []Paragraph{}}
	for _, words := range paragraphs {
		if len(words) == 0 {
			continue
		}
		para := Paragraph{Start: len(p.Words), Lengths: make([]int, len(words))}
		for i, w := range words {
			para.Lengths[i] = WordLength(w)
		}
		p.Words = append(p.Words, words...)
		p.Paragraphs = append(p.Paragraphs, para)
	}
	return p
}

// WordLength is the display width of a word in monospace columns.
func WordLength(w string) int {
	return runewidth.StringWidth(w)
}

// Len returns the number of words.
func (p *Payload) Len() int {
	return len(p.Words)
}

// Lengths returns the widths of all words in book order.
func (p *Payload) Lengths() []int {
	out := make([]int, 0, len(p.Words))
	for _, para := range p.Paragraphs {
		out = append(out, para.Lengths...)
	}
	return out
}

// ParagraphAt returns the index of the paragraph holding word idx, or -1
// when idx is out of range.
func (p *Payload) ParagraphAt(idx int) int {
	if idx < 0 || idx >= len(p.Words) {
		return -1
	}
	i := sort.Search(len(p.Paragraphs), func(i int) bool {
		return p.Paragraphs[i].Start > idx
	})
	return i - 1
}

// Window returns up to limit words starting at offset, clamped to the book.
func (p *Payload) Window(offset, limit int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(p.Words) || limit <= 0 {
		return []string{}
	}
	end := min(offset+limit, len(p.Words))
	return p.Words[offset:end]
}

// Clamp keeps a word index inside the book.
func (p *Payload) Clamp(idx int) int {
	if idx >= len(p.Words) {
		idx = len(p.Words) - 1
	}
	return max(idx, 0)
}
