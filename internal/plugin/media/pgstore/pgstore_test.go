package pgstore_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/plugin/media/pgstore"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"github.com/chirino/chatmap-ingest/internal/testutil/testpg"
	"github.com/stretchr/testify/require"
)

func TestPgMediaStore(t *testing.T) {
	ctx := context.Background()
	store, err := pgstore.New(ctx, testpg.Open(t))
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "k.png")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Get(ctx, "k.png")
	require.ErrorIs(t, err, registrymedia.ErrNotFound)

	require.NoError(t, store.Put(ctx, "k.png", strings.NewReader("v1"), 2, "image/png"))
	require.NoError(t, store.Put(ctx, "k.png", strings.NewReader("v2!"), 3, "image/png"))

	ok, err = store.Exists(ctx, "k.png")
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := store.Get(ctx, "k.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "v2!", string(data))

	require.NoError(t, store.Delete(ctx, "k.png"))
	ok, err = store.Exists(ctx, "k.png")
	require.NoError(t, err)
	require.False(t, ok)
}
