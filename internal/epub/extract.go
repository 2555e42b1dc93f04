package epub

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// maxChapterLoads bounds the number of chapters decoded at once.
const maxChapterLoads = 8

// Content is the text and cover extracted from a book.
type Content struct {
	Paragraphs [][]string
	Cover      *Cover
}

// Book is a fully ingested EPUB.
type Book struct {
	Package *Package
	Content
}

// Words returns the concatenated word sequence of all paragraphs.
func (c *Content) Words() []string {
	n := 0
	for _, p := range c.Paragraphs {
		n += len(p)
	}
	words := make([]string, 0, n)
	for _, p := range c.Paragraphs {
		words = append(words, p...)
	}
	return words
}

// Read opens, parses and extracts a book from an EPUB blob.
// Structural and identifier errors abort; per-chapter errors do not.
func Read(ctx context.Context, b Blob, logger *slog.Logger) (*Book, error) {
	return Reader{}.Read(ctx, b, logger)
}

// Read opens, parses and extracts a book using r to open the archive.
func (r Reader) Read(ctx context.Context, b Blob, logger *slog.Logger) (*Book, error) {
	a, err := r.Open(b)
	if err != nil {
		return nil, err
	}

	root, err := a.ReadFile(a.RootfilePath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootfileNotFound, err)
	}
	pkg, err := ParsePackage(root, a.RootfilePath())
	if err != nil {
		return nil, err
	}

	content, err := Extract(ctx, a, pkg, logger)
	if err != nil {
		return nil, err
	}
	return &Book{Package: pkg, Content: *content}, nil
}

// Extract walks the spine and extracts paragraphs from every linear XHTML
// document, in spine order. Chapters load concurrently; a chapter that is
// missing or malformed contributes no paragraphs. Only context
// cancellation makes Extract fail.
func Extract(ctx context.Context, a *Archive, pkg *Package, logger *slog.Logger) (*Content, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var paths []string
	for _, ref := range pkg.Spine.Items {
		if !ref.Linear {
			logger.Debug("skipping non-linear spine item", "idref", ref.IDRef)
			continue
		}
		item, ok := pkg.Manifest[ref.IDRef]
		if !ok {
			logger.Warn("spine item not found in manifest", "idref", ref.IDRef)
			continue
		}
		if item.MediaType != XHTMLMediaType {
			logger.Debug("skipping non-XHTML spine item", "idref", ref.IDRef, "media_type", item.MediaType)
			continue
		}
		paths = append(paths, item.Path)
	}

	chapters := make([][][]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxChapterLoads)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := a.ReadFile(p)
			if err != nil {
				logger.Warn("failed to load chapter", "path", p, "error", err)
				return nil
			}
			paragraphs, err := Paragraphs(data)
			if err != nil {
				logger.Warn("failed to parse chapter", "path", p, "kind", Kind(err), "error", err)
				return nil
			}
			chapters[i] = paragraphs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	content := &Content{}
	for _, ch := range chapters {
		content.Paragraphs = append(content.Paragraphs, ch...)
	}
	content.Cover = pkg.LoadCover(a)
	if content.Cover == nil {
		logger.Debug("no cover found", "identifier", pkg.Metadata.Identifier)
	}
	return content, nil
}
