package epub

import (
	"errors"
	"reflect"
	"testing"
)

func TestParagraphs_SimpleXHTML(t *testing.T) {
	xhtmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
	<title>Chapter 1</title>
	<link rel="stylesheet" href="../css/style.css"/>
</head>
<body>
	<h1>Chapter 1</h1>
	<p>This is a   sample
	paragraph.</p>
	<div><p>Nested <em>inline</em> text&nbsp;here.</p></div>
	<p>   </p>
	<p>Last?Really!</p>
</body>
</html>`

	got, err := Paragraphs([]byte(xhtmlContent))
	if err != nil {
		t.Fatalf("Paragraphs failed: %v", err)
	}

	want := [][]string{
		{"This", "is", "a", "sample", "paragraph."},
		{"Nested", "inline", "text\u00a0here."},
		{"Last?", "Really!"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs() = %q, want %q", got, want)
	}
}

func TestParagraphs_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unclosed element", `<html><body><p>text</body></html>`},
		{"mismatched tags", `<html><body><p>one</div></body></html>`},
		{"bare ampersand", `<html><body><p>fish & chips</p></body></html>`},
		{"not markup", `just some text`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Paragraphs([]byte(tt.content))
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("Paragraphs() error = %v, want ErrMalformedDocument", err)
			}
		})
	}
}

func TestParagraphs_Latin1(t *testing.T) {
	// "café" with é encoded as 0xE9
	content := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<html><body><p>caf\xe9 au lait</p></body></html>")
	got, err := Paragraphs(content)
	if err != nil {
		t.Fatalf("Paragraphs failed: %v", err)
	}
	want := [][]string{{"café", "au", "lait"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs() = %q, want %q", got, want)
	}
}

func TestParagraphsFromHTML_Lenient(t *testing.T) {
	got, err := ParagraphsFromHTML([]byte("<p>one & two<p>three"))
	if err != nil {
		t.Fatalf("ParagraphsFromHTML failed: %v", err)
	}
	want := [][]string{{"one", "&", "two"}, {"three"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParagraphsFromHTML() = %q, want %q", got, want)
	}
}
