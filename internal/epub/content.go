package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/yuanying/epubrsvp/internal/tokenize"
)

var xmlEncodingRe = regexp.MustCompile(`^\s*<\?xml[^>]*encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// Paragraphs parses an XHTML content document and returns the words of each
// <p> element in document order. Paragraphs without words are skipped.
// A document that is not well-formed XML returns ErrMalformedDocument.
func Paragraphs(content []byte) ([][]string, error) {
	utf8Content, err := toUTF8(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := checkWellFormed(utf8Content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return paragraphsFromHTML(utf8Content)
}

// ParagraphsFromHTML extracts <p> paragraphs from lenient HTML, such as
// rendered Markdown. No well-formedness check is made.
func ParagraphsFromHTML(content []byte) ([][]string, error) {
	return paragraphsFromHTML(content)
}

func paragraphsFromHTML(content []byte) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	var paragraphs [][]string
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		if words := tokenize.Paragraph(s.Text()); words != nil {
			paragraphs = append(paragraphs, words)
		}
	})
	return paragraphs, nil
}

// toUTF8 converts a document declaring a non-UTF-8 encoding in its XML
// prolog to UTF-8.
func toUTF8(content []byte) ([]byte, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	m := xmlEncodingRe.FindSubmatch(content)
	if m == nil {
		return content, nil
	}
	label := strings.ToLower(string(m[1]))
	if label == "utf-8" || label == "utf8" {
		return content, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// checkWellFormed runs a strict XML pass over the document. HTML named
// entities are accepted since XHTML producers emit them freely.
func checkWellFormed(content []byte) error {
	d := xml.NewDecoder(bytes.NewReader(content))
	d.Strict = true
	d.Entity = xml.HTMLEntity
	// content is already UTF-8; ignore the declared label
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	depth, roots := 0, 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots == 0 {
		return errors.New("document has no root element")
	}
	return nil
}
