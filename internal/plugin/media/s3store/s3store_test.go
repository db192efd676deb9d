package s3store_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/plugin/media/s3store"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"github.com/chirino/chatmap-ingest/internal/testutil/tests3"
	"github.com/stretchr/testify/require"
)

func TestS3MediaStore(t *testing.T) {
	bucket := tests3.StartS3(t)
	_ = s3store.ForceImport

	cfg := config.DefaultConfig()
	cfg.S3Bucket = bucket
	cfg.S3Prefix = "media"
	cfg.S3UsePathStyle = true
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrymedia.Select("s3")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "f00d.jpg")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Get(ctx, "f00d.jpg")
	require.ErrorIs(t, err, registrymedia.ErrNotFound)

	body := "not really a jpeg"
	require.NoError(t, store.Put(ctx, "f00d.jpg", strings.NewReader(body), int64(len(body)), "image/jpeg"))

	ok, err = store.Exists(ctx, "f00d.jpg")
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := store.Get(ctx, "f00d.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, body, string(data))

	require.NoError(t, store.Delete(ctx, "f00d.jpg"))
	ok, err = store.Exists(ctx, "f00d.jpg")
	require.NoError(t, err)
	require.False(t, ok)
}
