package position

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/epubrsvp/internal/store"
)

func setupTestStore(t *testing.T) (*Store, store.KV) {
	t.Helper()
	kv, err := store.Open(store.BackendMemory, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv, nil), kv
}

func TestStore_DefaultsToZero(t *testing.T) {
	s, _ := setupTestStore(t)
	assert.Equal(t, 0, s.Get(context.Background(), "unknown"))
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	require.NoError(t, s.Set(ctx, "book", 120))
	assert.Equal(t, 120, s.Get(ctx, "book"))

	// Moving backwards is allowed.
	require.NoError(t, s.Set(ctx, "book", 5))
	assert.Equal(t, 5, s.Get(ctx, "book"))

	assert.Error(t, s.Set(ctx, "book", -1))
	assert.Equal(t, 5, s.Get(ctx, "book"))
}

func TestStore_StoredShape(t *testing.T) {
	ctx := context.Background()
	s, kv := setupTestStore(t)

	require.NoError(t, s.Set(ctx, "book", 7))
	raw, err := kv.Get(ctx, store.PositionKey("book"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"wordIndex":7}`, string(raw))
}

func TestStore_CorruptValueReadsAsZero(t *testing.T) {
	ctx := context.Background()
	s, kv := setupTestStore(t)

	require.NoError(t, kv.Set(ctx, store.PositionKey("book"), []byte("garbage")))
	assert.Equal(t, 0, s.Get(ctx, "book"))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	require.NoError(t, s.Set(ctx, "a", 1))
	require.NoError(t, s.Set(ctx, "b", 2))
	require.NoError(t, s.Delete(ctx, "a"))

	assert.Equal(t, 0, s.Get(ctx, "a"))
	assert.Equal(t, 2, s.Get(ctx, "b"))
}

type failingKV struct{ store.KV }

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestStore_WriteFailureIsReturned(t *testing.T) {
	_, kv := setupTestStore(t)
	s := New(failingKV{kv}, nil)
	assert.Error(t, s.Set(context.Background(), "book", 3))
}
