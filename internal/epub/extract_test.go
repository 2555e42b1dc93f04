package epub

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRead_SpineOrder(t *testing.T) {
	data := buildBook(t, "urn:uuid:abc-123", map[string]string{
		"a": chapter("A", "alpha one", "alpha two"),
		"b": chapter("B", "bravo"),
		"c": chapter("C", "charlie one two"),
	}, []string{"c", "a", "b"})

	book, err := Read(context.Background(), blob(data), nil)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	if book.Package.Metadata.Identifier != "ABC-123" {
		t.Errorf("Identifier = %q, want ABC-123", book.Package.Metadata.Identifier)
	}
	want := [][]string{
		{"charlie", "one", "two"},
		{"alpha", "one"},
		{"alpha", "two"},
		{"bravo"},
	}
	if !reflect.DeepEqual(book.Paragraphs, want) {
		t.Errorf("Paragraphs = %q, want %q", book.Paragraphs, want)
	}
	wantWords := "charlie one two alpha one alpha two bravo"
	if got := strings.Join(book.Words(), " "); got != wantWords {
		t.Errorf("Words() = %q, want %q", got, wantWords)
	}
}

func TestRead_MalformedChapterContributesNothing(t *testing.T) {
	data := buildBook(t, "book-5", map[string]string{
		"ch1": chapter("1", "one"),
		"ch2": chapter("2", "two"),
		"ch3": `<html><body><p>broken <b>markup</p></body></html>`,
		"ch4": chapter("4", "four"),
		"ch5": chapter("5", "five"),
	}, []string{"ch1", "ch2", "ch3", "ch4", "ch5"})

	book, err := Read(context.Background(), blob(data), nil)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if got := strings.Join(book.Words(), " "); got != "one two four five" {
		t.Errorf("Words() = %q, want %q", got, "one two four five")
	}
}

func TestRead_StructuralErrorAborts(t *testing.T) {
	data := buildZip(t, zipFile{"mimetype", "application/zip"})
	_, err := Read(context.Background(), blob(data), nil)
	if !errors.Is(err, ErrUnsupportedMimeType) {
		t.Fatalf("Read() error = %v, want ErrUnsupportedMimeType", err)
	}
}

func TestExtract_SkipsNonLinearMissingAndNonXHTML(t *testing.T) {
	opf := `<package version="2.0" unique-identifier="id">
<metadata><identifier id="id">book</identifier></metadata>
<manifest>
  <item id="main" href="main.xhtml" media-type="application/xhtml+xml"/>
  <item id="notes" href="notes.xhtml" media-type="application/xhtml+xml"/>
  <item id="img" href="pic.jpg" media-type="image/jpeg"/>
</manifest>
<spine>
  <itemref idref="main"/>
  <itemref idref="notes" linear="no"/>
  <itemref idref="img"/>
  <itemref idref="ghost"/>
</spine>
</package>`
	a, pkg := coverBook(t, opf,
		zipFile{"OEBPS/main.xhtml", chapter("Main", "main text")},
		zipFile{"OEBPS/notes.xhtml", chapter("Notes", "footnote")},
		zipFile{"OEBPS/pic.jpg", "JPEG"},
	)

	content, err := Extract(context.Background(), a, pkg, nil)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	want := [][]string{{"main", "text"}}
	if !reflect.DeepEqual(content.Paragraphs, want) {
		t.Errorf("Paragraphs = %q, want %q", content.Paragraphs, want)
	}
}

func TestExtract_MissingChapterFile(t *testing.T) {
	opf := `<package unique-identifier="id">
<metadata><identifier id="id">book</identifier></metadata>
<manifest>
  <item id="a" href="a.xhtml" media-type="application/xhtml+xml"/>
  <item id="b" href="b.xhtml" media-type="application/xhtml+xml"/>
</manifest>
<spine><itemref idref="a"/><itemref idref="b"/></spine>
</package>`
	a, pkg := coverBook(t, opf, zipFile{"OEBPS/b.xhtml", chapter("B", "bee")})

	content, err := Extract(context.Background(), a, pkg, nil)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if got := content.Words(); !reflect.DeepEqual(got, []string{"bee"}) {
		t.Errorf("Words() = %q, want [bee]", got)
	}
}

func TestExtract_Canceled(t *testing.T) {
	data := buildBook(t, "id", map[string]string{"a": chapter("A", "text")}, []string{"a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, blob(data), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Read() error = %v, want context.Canceled", err)
	}
}
