// Package library owns the imported books: the library entry list, each
// book's word payload, its cover and the search index entries derived from
// it.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yuanying/epubrsvp/internal/book"
	"github.com/yuanying/epubrsvp/internal/epub"
	"github.com/yuanying/epubrsvp/internal/store"
)

// ErrBookNotFound is returned for ids not in the library.
var ErrBookNotFound = errors.New("book not found")

// Indexer receives the paragraphs of imported books.
type Indexer interface {
	IndexBook(ctx context.Context, bookID, title string, p *book.Payload) error
	DeleteBook(ctx context.Context, bookID string) error
}

// PositionDeleter removes reading positions of deleted books.
type PositionDeleter interface {
	Delete(ctx context.Context, ids ...string) error
}

type noopIndexer struct{}

func (noopIndexer) IndexBook(context.Context, string, string, *book.Payload) error { return nil }
func (noopIndexer) DeleteBook(context.Context, string) error                       { return nil }

// Options configures a Library.
type Options struct {
	Positions PositionDeleter
	Index     Indexer
	Logger    *slog.Logger
	// Reader opens EPUB archives. The zero value uses archive/zip.
	Reader epub.Reader
	// Now stamps new entries. Defaults to time.Now.
	Now func() time.Time
}

// Library is the set of imported books. It is safe for concurrent use;
// imports and deletions are serialized.
type Library struct {
	kv        store.KV
	positions PositionDeleter
	index     Indexer
	logger    *slog.Logger
	reader    epub.Reader
	now       func() time.Time

	mu       sync.Mutex
	entries  []book.Entry
	payloads map[string]*book.Payload
}

// Open loads the library entry list from kv.
func Open(ctx context.Context, kv store.KV, opts Options) (*Library, error) {
	l := &Library{
		kv:        kv,
		positions: opts.Positions,
		index:     opts.Index,
		logger:    opts.Logger,
		reader:    opts.Reader,
		now:       opts.Now,
		payloads:  make(map[string]*book.Payload),
	}
	if l.index == nil {
		l.index = noopIndexer{}
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.now == nil {
		l.now = time.Now
	}

	var entries []book.Entry
	err := store.GetJSON(ctx, kv, store.LibraryKey, &entries)
	switch {
	case errors.Is(err, store.ErrNotFound):
		entries = []book.Entry{}
	case err != nil:
		return nil, fmt.Errorf("failed to load library: %w", err)
	}
	l.entries = entries
	l.logger.Debug("library loaded", "books", len(entries))
	return l, nil
}

// Entries returns a copy of the library entries in import order.
func (l *Library) Entries() []book.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Entry returns the entry with the given id.
func (l *Library) Entry(id string) (book.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.find(id)
	if i < 0 {
		return book.Entry{}, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return l.entries[i], nil
}

// Book loads the payload of a book, reading it from the store on first use.
func (l *Library) Book(ctx context.Context, id string) (*book.Payload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.find(id) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	if p, ok := l.payloads[id]; ok {
		return p, nil
	}

	var p book.Payload
	if err := store.GetJSON(ctx, l.kv, store.BookKey(id), &p); err != nil {
		return nil, fmt.Errorf("failed to load book %s: %w", id, err)
	}
	l.payloads[id] = &p
	return &p, nil
}

// Cover returns a book's cover image and its content type: the declared one
// when known, else the sniffed one.
func (l *Library) Cover(ctx context.Context, id string) ([]byte, string, error) {
	entry, err := l.Entry(id)
	if err != nil {
		return nil, "", err
	}
	if !entry.HasCover {
		return nil, "", fmt.Errorf("book %s has no cover: %w", id, store.ErrNotFound)
	}
	data, err := l.kv.Get(ctx, store.CoverKey(id))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load cover of %s: %w", id, err)
	}
	if entry.CoverType != "" {
		return data, entry.CoverType, nil
	}
	return data, mimetype.Detect(data).String(), nil
}

// DeleteBooks removes the listed books together with their payload, cover,
// reading position and search entries. Unknown ids are ignored. It returns
// the number of entries removed.
func (l *Library) DeleteBooks(ctx context.Context, ids ...string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []string
	kept := make([]book.Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if slices.Contains(ids, e.ID) {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := store.SetJSON(ctx, l.kv, store.LibraryKey, kept); err != nil {
		l.logger.Error("failed to write library", "key", store.LibraryKey, "error", err)
		return 0, err
	}
	l.entries = kept

	keys := make([]string, 0, 2*len(removed))
	for _, id := range removed {
		keys = append(keys, store.BookKey(id), store.CoverKey(id))
		delete(l.payloads, id)
	}
	var errs []error
	if err := l.kv.Delete(ctx, keys...); err != nil {
		l.logger.Error("failed to delete book data", "books", removed, "error", err)
		errs = append(errs, err)
	}
	if l.positions != nil {
		if err := l.positions.Delete(ctx, removed...); err != nil {
			l.logger.Error("failed to delete reading positions", "books", removed, "error", err)
			errs = append(errs, err)
		}
	}
	for _, id := range removed {
		if err := l.index.DeleteBook(ctx, id); err != nil {
			l.logger.Warn("failed to remove book from search index", "book_id", id, "error", err)
		}
	}

	l.logger.Info("deleted books", "books", removed)
	return len(removed), errors.Join(errs...)
}

// find returns the index of id in entries, or -1. Caller holds mu.
func (l *Library) find(id string) int {
	return slices.IndexFunc(l.entries, func(e book.Entry) bool { return e.ID == id })
}
