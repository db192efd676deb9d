package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/chirino/chatmap-ingest/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/chatmap-ingest/internal/registry/migrate"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/chirino/chatmap-ingest/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.PointStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	cfg.DatastoreType = "postgres"
	ctx, cancel := context.WithCancel(config.WithContext(context.Background(), &cfg))
	t.Cleanup(cancel)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

func ptr(s string) *string { return &s }

func TestGetOrCreateMapIsStable(t *testing.T) {
	store, ctx := setupTestStore(t)

	m1, err := store.GetOrCreateMap(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.SharingPrivate, m1.Sharing)
	assert.Equal(t, model.DefaultMapName, m1.Name)

	m2, err := store.GetOrCreateMap(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, m1.ID, m2.ID)
}

func TestUpsertPointsCoalescesMessageAndFile(t *testing.T) {
	store, ctx := setupTestStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := store.UpsertPoints(ctx, "alice", []model.Point{{
		ID:       "2",
		Geometry: orb.Point{-64.263, -31.006},
		Message:  ptr("hi"),
		Username: "alice",
		Time:     at,
		File:     ptr("http://localhost:8000/v1/media?filename=abc.jpg"),
	}})
	require.NoError(t, err)

	// A later pass without content must not erase the stored values.
	err = store.UpsertPoints(ctx, "alice", []model.Point{{
		ID:       "2",
		Geometry: orb.Point{-64.3, -31.1},
		Username: "alice",
		Time:     at.Add(time.Minute),
	}})
	require.NoError(t, err)

	m, err := store.GetMapByOwner(ctx, "alice")
	require.NoError(t, err)
	_, points, err := store.ExportMap(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, "2", p.ID)
	assert.InDelta(t, -64.3, p.Geometry.Lon(), 1e-9)
	assert.InDelta(t, -31.1, p.Geometry.Lat(), 1e-9)
	require.NotNil(t, p.Message)
	assert.Equal(t, "hi", *p.Message)
	require.NotNil(t, p.File)
	assert.True(t, p.Time.Equal(at.Add(time.Minute)))

	err = store.UpsertPoints(ctx, "alice", []model.Point{{
		ID: "2", Geometry: orb.Point{-64.3, -31.1}, Username: "alice", Time: at, Message: ptr("updated"),
	}})
	require.NoError(t, err)
	_, points, err = store.ExportMap(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", *points[0].Message)
}

func TestSharingAndPublicMap(t *testing.T) {
	store, ctx := setupTestStore(t)

	m, err := store.GetOrCreateMap(ctx, "bob")
	require.NoError(t, err)

	_, _, err = store.PublicMap(ctx, m.ID)
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)

	updated, err := store.SetSharing(ctx, "bob", model.SharingPublic)
	require.NoError(t, err)
	assert.Equal(t, model.SharingPublic, updated.Sharing)

	got, points, err := store.PublicMap(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Empty(t, points)

	_, err = store.SetSharing(ctx, "nobody", model.SharingPublic)
	require.ErrorAs(t, err, &nf)

	_, err = store.SetSharing(ctx, "bob", model.Sharing("friends"))
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestExportUnknownMap(t *testing.T) {
	store, ctx := setupTestStore(t)
	_, _, err := store.ExportMap(ctx, uuid.New())
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}
