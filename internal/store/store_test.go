package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStores opens every backend in a temp dir.
func setupTestStores(t *testing.T) map[string]KV {
	t.Helper()
	dir := t.TempDir()

	b, err := OpenBadger(filepath.Join(dir, "badger"), nil)
	require.NoError(t, err)
	s, err := OpenSQLite(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	m, err := Open(BackendMemory, "", nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = b.Close()
		_ = s.Close()
		_ = m.Close()
	})
	return map[string]KV{"badger": b, "sqlite": s, "memory": m}
}

func TestKV_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Set(ctx, "a", []byte("one")))
			got, err := kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), got)

			require.NoError(t, kv.Set(ctx, "a", []byte("two")))
			got, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), got)

			require.NoError(t, kv.Set(ctx, "b", []byte("x")))
			require.NoError(t, kv.Delete(ctx, "a", "never-set"))

			_, err = kv.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = kv.Get(ctx, "b")
			assert.NoError(t, err)
		})
	}
}

func TestKV_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	type value struct {
		WordIndex int `json:"wordIndex"`
	}

	for name, kv := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, SetJSON(ctx, kv, PositionKey("book"), value{WordIndex: 42}))

			var got value
			require.NoError(t, GetJSON(ctx, kv, PositionKey("book"), &got))
			assert.Equal(t, 42, got.WordIndex)

			err := GetJSON(ctx, kv, PositionKey("other"), &got)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Set(ctx, "bad", []byte("{not json")))
			assert.Error(t, GetJSON(ctx, kv, "bad", &got))
		})
	}
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{BackendBadger, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			kv, err := Open(backend, dir, nil)
			require.NoError(t, err)
			require.NoError(t, kv.Set(ctx, LibraryKey, []byte(`[]`)))
			require.NoError(t, kv.Close())

			kv, err = Open(backend, dir, nil)
			require.NoError(t, err)
			defer kv.Close()
			got, err := kv.Get(ctx, LibraryKey)
			require.NoError(t, err)
			assert.Equal(t, "[]", string(got))
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("postgres", t.TempDir(), nil)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "book:ABC", BookKey("ABC"))
	assert.Equal(t, "book:ABC_cover", CoverKey("ABC"))
	assert.Equal(t, "position:ABC", PositionKey("ABC"))
	assert.Equal(t, "settings:wordsPerMinute", SettingKey("wordsPerMinute"))
}
