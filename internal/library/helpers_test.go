package library

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yuanying/epubrsvp/internal/book"
	"github.com/yuanying/epubrsvp/internal/position"
	"github.com/yuanying/epubrsvp/internal/store"
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// testBook describes a generated EPUB.
type testBook struct {
	id       string
	title    string
	creator  string
	chapters []string // one paragraph each
	cover    []byte   // optional
	coverMT  string   // declared cover type, image/png when empty
}

func (b testBook) epub(t *testing.T) []byte {
	t.Helper()

	var manifest, spine strings.Builder
	for i := range b.chapters {
		fmt.Fprintf(&manifest, `<item id="ch%d" href="ch%d.xhtml" media-type="application/xhtml+xml"/>`, i, i)
		fmt.Fprintf(&spine, `<itemref idref="ch%d"/>`, i)
	}
	if b.cover != nil {
		mt := b.coverMT
		if mt == "" {
			mt = "image/png"
		}
		fmt.Fprintf(&manifest, `<item id="cover" href="cover.png" media-type="%s" properties="cover-image"/>`, mt)
	}
	opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="bookid">%s</dc:identifier>
    <dc:title>%s</dc:title>
    <dc:creator>%s</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>%s</manifest>
  <spine>%s</spine>
</package>`, b.id, b.title, b.creator, manifest.String(), spine.String())

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	add := func(name string, data []byte, method uint16) {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	add("mimetype", []byte("application/epub+zip"), zip.Store)
	add("META-INF/container.xml", []byte(testContainer), zip.Deflate)
	add("OEBPS/content.opf", []byte(opf), zip.Deflate)
	for i, text := range b.chapters {
		doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>c</title></head>
<body><p>%s</p></body></html>`, text)
		add(fmt.Sprintf("OEBPS/ch%d.xhtml", i), []byte(doc), zip.Deflate)
	}
	if b.cover != nil {
		add("OEBPS/cover.png", b.cover, zip.Store)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func (b testBook) file(t *testing.T, name string) File {
	return File{Name: name, ContentType: TypeEPUB, Data: b.epub(t)}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 180))
	for y := 0; y < 180; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 2), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// recordingIndex is an Indexer that remembers indexed books.
type recordingIndex struct {
	mu    sync.Mutex
	books map[string]string
}

func (r *recordingIndex) IndexBook(_ context.Context, id, title string, _ *book.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.books == nil {
		r.books = map[string]string{}
	}
	r.books[id] = title
	return nil
}

func (r *recordingIndex) DeleteBook(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, id)
	return nil
}

// failingKV fails every Set of a key with the given prefix.
type failingKV struct {
	store.KV
	prefix string
}

func (f failingKV) Set(ctx context.Context, key string, value []byte) error {
	if strings.HasPrefix(key, f.prefix) {
		return fmt.Errorf("disk full writing %s", key)
	}
	return f.KV.Set(ctx, key, value)
}

type fixture struct {
	kv        store.KV
	positions *position.Store
	index     *recordingIndex
	lib       *Library
}

func setupLibrary(t *testing.T) *fixture {
	t.Helper()
	kv, err := store.Open(store.BackendMemory, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return openFixture(t, kv)
}

func openFixture(t *testing.T, kv store.KV) *fixture {
	t.Helper()
	f := &fixture{kv: kv, positions: position.New(kv, nil), index: &recordingIndex{}}
	lib, err := Open(context.Background(), kv, Options{Positions: f.positions, Index: f.index})
	require.NoError(t, err)
	f.lib = lib
	return f
}
