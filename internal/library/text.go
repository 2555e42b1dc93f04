package library

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/yuanying/epubrsvp/internal/epub"
	"github.com/yuanying/epubrsvp/internal/tokenize"
)

// decodeText converts text to UTF-8. A UTF-16 or UTF-8 byte order mark
// selects the encoding; without one the input is read as UTF-8 and invalid
// bytes become U+FFFD.
func decodeText(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode text: %w", err)
	}
	return out, nil
}

// textParagraphs reads plain text as a single paragraph.
func textParagraphs(data []byte) ([][]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	words := tokenize.Paragraph(string(text))
	if words == nil {
		return nil, ErrNoWords
	}
	return [][]string{words}, nil
}

// markdownParagraphs renders Markdown and splits the result into paragraphs.
func markdownParagraphs(data []byte) ([][]string, error) {
	src, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	paragraphs, err := epub.ParagraphsFromHTML(buf.Bytes())
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return nil, ErrNoWords
	}
	return paragraphs, nil
}
