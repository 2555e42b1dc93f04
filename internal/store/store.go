// Package store is the key/value persistence used for the library, book
// payloads, covers, reading positions and settings.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("key not found")

// KV is a flat key/value store. Each Set is atomic: a reader never sees a
// partially written value.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Key layout.
const (
	LibraryKey     = "library"
	bookPrefix     = "book:"
	positionPrefix = "position:"
	settingsPrefix = "settings:"
)

// BookKey is the key of a book's word payload.
func BookKey(id string) string { return bookPrefix + id }

// CoverKey is the key of a book's cover image.
func CoverKey(id string) string { return bookPrefix + id + "_cover" }

// PositionKey is the key of a book's reading position.
func PositionKey(id string) string { return positionPrefix + id }

// SettingKey is the key of one reader setting.
func SettingKey(name string) string { return settingsPrefix + name }

// Open opens the named backend under dir.
func Open(backend, dir string, logger *slog.Logger) (KV, error) {
	switch backend {
	case BackendBadger, "":
		return OpenBadger(filepath.Join(dir, "badger"), logger)
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "epubrsvp.db"), logger)
	case BackendMemory:
		return OpenBadger("", logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// GetJSON reads key and decodes it into dest.
func GetJSON(ctx context.Context, kv KV, key string, dest any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and writes it under key.
func SetJSON(ctx context.Context, kv KV, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}
