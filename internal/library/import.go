package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/yuanying/epubrsvp/internal/book"
	"github.com/yuanying/epubrsvp/internal/epub"
	"github.com/yuanying/epubrsvp/internal/store"
)

// Content types recognised by ImportFiles.
const (
	TypeEPUB     = epub.MediaType
	TypeText     = "text/plain"
	TypeMarkdown = "text/markdown"
)

// File is one picked or uploaded file.
type File = epub.Blob

// Skipped is a file that was not imported because its book already exists.
type Skipped struct {
	File string `json:"file"`
	ID   string `json:"id"`
}

// Failed is a file that could not be imported.
type Failed struct {
	File string `json:"file"`
	Kind string `json:"kind"`
	Err  error  `json:"-"`
}

// Message is the user-facing notice for a failed import.
func (f Failed) Message() string {
	return "failed to import " + f.File
}

// ImportReport summarises one ImportFiles call.
type ImportReport struct {
	BatchID  string       `json:"batchId"`
	Imported []book.Entry `json:"imported"`
	Skipped  []Skipped    `json:"skipped"`
	Failed   []Failed     `json:"failed"`
}

// parsed is a fully extracted book ready to persist.
type parsed struct {
	entry   book.Entry
	payload *book.Payload
	cover   []byte
}

// ImportFiles imports each file in order. A file whose resolved identifier
// is already in the library, or earlier in the same batch, is skipped. A
// file that fails to parse or persist is reported and the batch goes on.
// Only context cancellation aborts the batch.
func (l *Library) ImportFiles(ctx context.Context, files []File) (*ImportReport, error) {
	batchID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate batch id: %w", err)
	}
	report := &ImportReport{
		BatchID:  batchID,
		Imported: []book.Entry{},
		Skipped:  []Skipped{},
		Failed:   []Failed{},
	}
	logger := l.logger.With("batch_id", batchID)

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		b, err := l.parse(ctx, f)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			kind := errorKind(err)
			logger.Error("failed to import file", "file", f.Name, "kind", kind, "error", err)
			report.Failed = append(report.Failed, Failed{File: f.Name, Kind: kind, Err: err})
			continue
		}

		id := b.entry.ID
		if l.find(id) >= 0 {
			logger.Info("book already in library, skipping", "file", f.Name, "book_id", id)
			report.Skipped = append(report.Skipped, Skipped{File: f.Name, ID: id})
			continue
		}

		if err := l.persist(ctx, b); err != nil {
			report.Failed = append(report.Failed, Failed{File: f.Name, Kind: "Storage", Err: err})
			continue
		}
		logger.Info("imported book", "file", f.Name, "book_id", id, "title", b.entry.Title, "words", b.entry.TotalWords)
		report.Imported = append(report.Imported, b.entry)
	}
	return report, nil
}

// persist writes the payload and cover, then the library entry. The entry is
// only added once the payload is stored. Caller holds mu.
func (l *Library) persist(ctx context.Context, b *parsed) error {
	id := b.entry.ID

	if err := store.SetJSON(ctx, l.kv, store.BookKey(id), b.payload); err != nil {
		l.logger.Error("failed to write book payload", "key", store.BookKey(id), "error", err)
		return err
	}
	if b.cover != nil {
		if err := l.kv.Set(ctx, store.CoverKey(id), b.cover); err != nil {
			l.logger.Warn("failed to write cover", "key", store.CoverKey(id), "error", err)
			b.entry.HasCover = false
			b.entry.BlurHash = ""
		}
	}

	entries := append(l.entries[:len(l.entries):len(l.entries)], b.entry)
	if err := store.SetJSON(ctx, l.kv, store.LibraryKey, entries); err != nil {
		l.logger.Error("failed to write library", "key", store.LibraryKey, "error", err)
		if delErr := l.kv.Delete(ctx, store.BookKey(id), store.CoverKey(id)); delErr != nil {
			l.logger.Warn("failed to clean up book data", "book_id", id, "error", delErr)
		}
		return err
	}
	l.entries = entries
	l.payloads[id] = b.payload

	if err := l.index.IndexBook(ctx, id, b.entry.Title, b.payload); err != nil {
		l.logger.Warn("failed to index book", "book_id", id, "error", err)
	}
	return nil
}

// parse extracts a book from a file according to its content type.
func (l *Library) parse(ctx context.Context, f File) (*parsed, error) {
	typ := DetectType(f)
	switch typ {
	case TypeText:
		paragraphs, err := textParagraphs(f.Data)
		if err != nil {
			return nil, err
		}
		return l.plainBook(f, paragraphs), nil
	case TypeMarkdown:
		paragraphs, err := markdownParagraphs(f.Data)
		if err != nil {
			return nil, err
		}
		return l.plainBook(f, paragraphs), nil
	default:
		f.ContentType = typ
		return l.epubBook(ctx, f)
	}
}

func (l *Library) epubBook(ctx context.Context, f File) (*parsed, error) {
	bk, err := l.reader.Read(ctx, f, l.logger.With("file", f.Name))
	if err != nil {
		return nil, err
	}

	md := bk.Package.Metadata
	payload := book.Build(bk.Paragraphs)
	entry := book.Entry{
		ID:          md.Identifier,
		Title:       md.Title,
		Creator:     md.Creator(),
		TotalWords:  payload.Len(),
		Language:    md.Language,
		Publisher:   md.Publisher,
		Description: md.Description,
		Subjects:    md.Subjects,
		Published:   md.Published,
		Source:      f.Name,
		AddedAt:     l.now(),
	}
	if entry.Title == "" {
		entry.Title = baseTitle(f.Name)
	}

	b := &parsed{entry: entry, payload: payload}
	if bk.Cover != nil {
		cover, err := shrinkCover(bk.Cover.Data)
		if err != nil {
			l.logger.Warn("storing cover as is", "file", f.Name, "href", bk.Cover.Href, "error", err)
		}
		b.cover = cover
		b.entry.HasCover = true
		b.entry.CoverType = coverType(bk.Cover.MediaType, bk.Cover.Data, cover)
		hash, err := BlurHash(cover)
		if err != nil {
			l.logger.Warn("failed to decode cover", "file", f.Name, "href", bk.Cover.Href, "error", err)
		}
		b.entry.BlurHash = hash
	}
	return b, nil
}

// coverType is the content type of the stored cover: JPEG once re-encoded,
// otherwise the declared image type, if any.
func coverType(declared string, original, stored []byte) string {
	if !bytes.Equal(original, stored) {
		return "image/jpeg"
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return ""
}

// plainBook builds a book from non-archive input: the file name is both id
// and title.
func (l *Library) plainBook(f File, paragraphs [][]string) *parsed {
	payload := book.Build(paragraphs)
	name := filepath.Base(f.Name)
	return &parsed{
		entry: book.Entry{
			ID:         name,
			Title:      name,
			TotalWords: payload.Len(),
			Source:     f.Name,
			AddedAt:    l.now(),
		},
		payload: payload,
	}
}

func baseTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DetectType returns the import type of a file. A declared content type
// wins; untyped or generic files are typed by extension, then by sniffing.
// Anything unrecognised is treated as EPUB and left to the archive reader
// to reject.
func DetectType(f File) string {
	if declared := normalizeType(f.ContentType); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".epub":
		return TypeEPUB
	case ".txt", ".text":
		return TypeText
	case ".md", ".markdown":
		return TypeMarkdown
	}
	mt := mimetype.Detect(f.Data)
	switch {
	case mt.Is(TypeEPUB):
		return TypeEPUB
	case mt.Is(TypeText):
		return TypeText
	}
	return normalizeType(mt.String())
}

func normalizeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "text/x-markdown":
		return TypeMarkdown
	}
	return mediaType
}

// ErrNoWords is returned for text input without a single word.
var ErrNoWords = errors.New("file contains no words")

// errorKind names an import failure for logging.
func errorKind(err error) string {
	if errors.Is(err, ErrNoWords) {
		return "NoWords"
	}
	return epub.Kind(err)
}
