// Package search is a full-text index over the paragraphs of imported
// books. A hit carries the index of the paragraph's first word so a reader
// can jump straight to it.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/yuanying/epubrsvp/internal/book"
)

// mappingVersion changes whenever buildIndexMapping does; a mismatch on open
// rebuilds the index from scratch.
const mappingVersion = "1"

// batchSize bounds the documents committed per bleve batch.
const batchSize = 500

// DefaultLimit is used when Search is called with limit <= 0.
const DefaultLimit = 20

// Index wraps a bleve index of book paragraphs. It is safe for concurrent
// use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Hit is one matching paragraph.
type Hit struct {
	BookID    string  `json:"bookId"`
	Title     string  `json:"title,omitempty"`
	Paragraph int     `json:"paragraph"`
	WordIndex int     `json:"wordIndex"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	Fragment  string  `json:"fragment,omitempty"`
}

// Open opens or creates the index under dir. An empty dir keeps the index
// in memory. An index with an outdated mapping or that fails to open is
// recreated; the caller is expected to re-index books.
func Open(dir string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dir == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}

	indexPath := filepath.Join(dir, "search.bleve")
	versionPath := filepath.Join(dir, "search.version")

	var idx bleve.Index
	if _, err := os.Stat(indexPath); err == nil {
		version, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(version) != mappingVersion:
			logger.Info("search index mapping changed, rebuilding", "old_version", string(version), "new_version", mappingVersion)
		default:
			idx, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open search index, recreating", "path", indexPath, "error", err)
				idx = nil
			}
		}
		if idx == nil {
			if err := os.RemoveAll(indexPath); err != nil {
				return nil, fmt.Errorf("remove old index: %w", err)
			}
		}
	}

	if idx == nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		var err error
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search version file", "error", err)
		}
		logger.Info("created search index", "path", indexPath)
	}

	return &Index{index: idx, path: indexPath, logger: logger}, nil
}

// Close closes the index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// DocumentCount returns the number of indexed paragraphs.
func (s *Index) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

func docID(bookID string, paragraph int) string {
	return bookID + "/" + strconv.Itoa(paragraph)
}

// IndexBook indexes every paragraph of a book. Re-importing a book should
// call DeleteBook first so stale paragraphs do not linger.
func (s *Index) IndexBook(ctx context.Context, bookID, title string, p *book.Payload) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < len(p.Paragraphs); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+batchSize, len(p.Paragraphs))

		batch := s.index.NewBatch()
		for n := i; n < end; n++ {
			para := p.Paragraphs[n]
			doc := map[string]any{
				fieldBookID:    bookID,
				fieldTitle:     title,
				fieldText:      strings.Join(p.Words[para.Start:para.End()], " "),
				fieldParagraph: n,
				fieldStart:     para.Start,
			}
			if err := batch.Index(docID(bookID, n), doc); err != nil {
				return fmt.Errorf("batch index %s: %w", docID(bookID, n), err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	s.logger.Debug("indexed book", "book_id", bookID, "paragraphs", len(p.Paragraphs))
	return nil
}

// DeleteBook removes every paragraph of the given book.
func (s *Index) DeleteBook(ctx context.Context, bookID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for {
		req := bleve.NewSearchRequestOptions(bookQuery(bookID), batchSize, 0, false)
		res, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find paragraphs of %s: %w", bookID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := s.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("delete paragraphs of %s: %w", bookID, err)
		}
	}
}

// Search finds paragraphs matching q, best first. An empty bookID searches
// every book.
func (s *Index) Search(ctx context.Context, bookID, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	match := bleve.NewMatchQuery(q)
	match.SetField(fieldText)
	match.SetOperator(query.MatchQueryOperatorAnd)

	var sq query.Query = match
	if bookID != "" {
		sq = bleve.NewConjunctionQuery(match, bookQuery(bookID))
	}

	req := bleve.NewSearchRequestOptions(sq, limit, 0, false)
	req.Fields = []string{fieldBookID, fieldTitle, fieldText, fieldParagraph, fieldStart}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(fieldText)

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if v, ok := h.Fields[fieldBookID].(string); ok {
			hit.BookID = v
		}
		if v, ok := h.Fields[fieldTitle].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields[fieldText].(string); ok {
			hit.Text = v
		}
		if v, ok := h.Fields[fieldParagraph].(float64); ok {
			hit.Paragraph = int(v)
		}
		if v, ok := h.Fields[fieldStart].(float64); ok {
			hit.WordIndex = int(v)
		}
		if frags := h.Fragments[fieldText]; len(frags) > 0 {
			hit.Fragment = frags[0]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func bookQuery(bookID string) query.Query {
	tq := bleve.NewTermQuery(bookID)
	tq.SetField(fieldBookID)
	return tq
}
