package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"testing"
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// zipFile is one entry of a test archive.
type zipFile struct {
	name    string
	content string
}

// buildZip writes the entries, in order, into an in-memory zip archive.
func buildZip(t *testing.T, files ...zipFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		method := zip.Deflate
		if f.name == "mimetype" {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", f.name, err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("failed to write %s: %v", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// chapter returns an XHTML document holding the given paragraphs.
func chapter(title string, paragraphs ...string) string {
	var body bytes.Buffer
	for _, p := range paragraphs {
		fmt.Fprintf(&body, "<p>%s</p>\n", p)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body><h1>%s</h1>
%s</body>
</html>`, title, title, body.String())
}

// buildBook builds an EPUB with the chapters listed in spine order. The
// manifest declares them in reverse id order.
func buildBook(t *testing.T, identifier string, chapters map[string]string, spine []string) []byte {
	t.Helper()

	var manifest, itemrefs bytes.Buffer
	ids := make([]string, 0, len(chapters))
	for id := range chapters {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	for _, id := range ids {
		fmt.Fprintf(&manifest, `    <item id="%s" href="text/%s.xhtml" media-type="application/xhtml+xml"/>`+"\n", id, id)
	}
	for _, id := range spine {
		fmt.Fprintf(&itemrefs, `    <itemref idref="%s"/>`+"\n", id)
	}

	opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Test Author</dc:creator>
    <dc:identifier id="bookid">%s</dc:identifier>
  </metadata>
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, identifier, manifest.String(), itemrefs.String())

	files := []zipFile{
		{"mimetype", MediaType},
		{"META-INF/container.xml", testContainer},
		{"OEBPS/content.opf", opf},
	}
	for _, id := range ids {
		files = append(files, zipFile{"OEBPS/text/" + id + ".xhtml", chapters[id]})
	}
	return buildZip(t, files...)
}

func blob(data []byte) Blob {
	return Blob{Name: "test.epub", ContentType: MediaType, Data: data}
}
