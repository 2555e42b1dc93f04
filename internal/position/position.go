// Package position stores the current word index of each book.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yuanying/epubrsvp/internal/store"
)

// Position is the persisted reading position of one book.
type Position struct {
	WordIndex int `json:"wordIndex"`
}

// Store reads and writes reading positions. Writes go straight to the
// backing KV. Writes for the same process are serialized.
type Store struct {
	kv     store.KV
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a position store over kv.
func New(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, logger: logger}
}

// Get returns the word index for id, or 0 when none is stored or it cannot
// be read. Get never fails.
func (s *Store) Get(ctx context.Context, id string) int {
	var p Position
	err := store.GetJSON(ctx, s.kv, store.PositionKey(id), &p)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to read reading position", "book_id", id, "error", err)
		}
		return 0
	}
	if p.WordIndex < 0 {
		return 0
	}
	return p.WordIndex
}

// Set persists the word index for id. Positions may move backwards.
func (s *Store) Set(ctx context.Context, id string, wordIndex int) error {
	if wordIndex < 0 {
		return fmt.Errorf("invalid word index %d", wordIndex)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := store.PositionKey(id)
	if err := store.SetJSON(ctx, s.kv, key, Position{WordIndex: wordIndex}); err != nil {
		s.logger.Error("failed to write reading position", "key", key, "error", err)
		return err
	}
	return nil
}

// Delete removes the stored positions of the given books.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = store.PositionKey(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, keys...)
}
