package mongostore_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/plugin/media/mongostore"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"github.com/chirino/chatmap-ingest/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
)

func TestMongoMediaStore(t *testing.T) {
	ctx := context.Background()
	store := mongostore.New(testmongo.Database(t), t.TempDir())

	ok, err := store.Exists(ctx, "a.ogg")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Get(ctx, "a.ogg")
	require.ErrorIs(t, err, registrymedia.ErrNotFound)

	require.NoError(t, store.Put(ctx, "a.ogg", strings.NewReader("first"), 5, ""))
	require.NoError(t, store.Put(ctx, "a.ogg", strings.NewReader("second"), 6, ""))

	rc, err := store.Get(ctx, "a.ogg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "second", string(data))

	require.NoError(t, store.Delete(ctx, "a.ogg"))
	ok, err = store.Exists(ctx, "a.ogg")
	require.NoError(t, err)
	require.False(t, ok)
}
