package fs_test

import (
	"context"
	"io"
	"strings"
	"testing"

	mediafs "github.com/chirino/chatmap-ingest/internal/plugin/media/fs"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	store, err := mediafs.New(t.TempDir())
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "abc.jpg")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Get(ctx, "abc.jpg")
	require.ErrorIs(t, err, registrymedia.ErrNotFound)

	require.NoError(t, store.Put(ctx, "abc.jpg", strings.NewReader("jpeg"), 4, "image/jpeg"))
	ok, err = store.Exists(ctx, "abc.jpg")
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := store.Get(ctx, "abc.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "jpeg", string(data))

	require.NoError(t, store.Delete(ctx, "abc.jpg"))
	require.NoError(t, store.Delete(ctx, "abc.jpg"))
}

func TestDirStoreRejectsPathKeys(t *testing.T) {
	store, err := mediafs.New(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"../x.jpg", "a/b.jpg", "", ".hidden"} {
		_, err := store.Exists(context.Background(), key)
		require.Error(t, err, key)
	}
}
