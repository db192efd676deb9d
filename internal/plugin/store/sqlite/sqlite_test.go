package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/chirino/chatmap-ingest/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/chatmap-ingest/internal/registry/migrate"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chatmap.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(s string) *string { return &s }

func point(id string, message, file *string) model.Point {
	return model.Point{
		ID:       id,
		Geometry: orb.Point{-64.263, -31.006},
		Message:  message,
		Username: "alice",
		Time:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		File:     file,
	}
}

func exportOwner(t *testing.T, s *sqlite.SQLiteStore, owner string) []model.Point {
	t.Helper()
	ctx := context.Background()
	m, err := s.GetMapByOwner(ctx, owner)
	require.NoError(t, err)
	_, points, err := s.ExportMap(ctx, m.ID)
	require.NoError(t, err)
	return points
}

func TestUpsertKeepsExistingContentWhenIncomingIsNull(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPoints(ctx, "alice", []model.Point{point("2", ptr("hi"), ptr("a.jpg"))}))

	moved := point("2", nil, nil)
	moved.Geometry = orb.Point{-64.5, -31.5}
	require.NoError(t, s.UpsertPoints(ctx, "alice", []model.Point{moved}))

	points := exportOwner(t, s, "alice")
	require.Len(t, points, 1)
	assert.Equal(t, orb.Point{-64.5, -31.5}, points[0].Geometry)
	require.NotNil(t, points[0].Message)
	assert.Equal(t, "hi", *points[0].Message)
	require.NotNil(t, points[0].File)
	assert.Equal(t, "a.jpg", *points[0].File)
}

func TestUpsertOverwritesWithNonNullContent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPoints(ctx, "alice", []model.Point{point("2", ptr("hi"), nil)}))
	require.NoError(t, s.UpsertPoints(ctx, "alice", []model.Point{point("2", ptr("bye"), ptr("b.jpg"))}))

	points := exportOwner(t, s, "alice")
	require.Len(t, points, 1)
	assert.Equal(t, "bye", *points[0].Message)
	assert.Equal(t, "b.jpg", *points[0].File)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	batch := []model.Point{point("2", ptr("hi"), nil), point("4", nil, nil)}

	require.NoError(t, s.UpsertPoints(ctx, "alice", batch))
	first := exportOwner(t, s, "alice")
	require.NoError(t, s.UpsertPoints(ctx, "alice", batch))
	assert.Equal(t, first, exportOwner(t, s, "alice"))
	assert.Len(t, first, 2)
}

func TestUpsertEmptyBatchCreatesNothing(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpsertPoints(context.Background(), "alice", nil))
	_, err := s.GetMapByOwner(context.Background(), "alice")
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestGetOrCreateMapConcurrent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.GetOrCreateMap(ctx, "carol")
			if assert.NoError(t, err) {
				ids[i] = m.ID.String()
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSetSharingToggle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m, err := s.GetOrCreateMap(ctx, "dave")
	require.NoError(t, err)

	updated, err := s.SetSharing(ctx, "dave", m.Sharing.Toggle())
	require.NoError(t, err)
	assert.Equal(t, model.SharingPublic, updated.Sharing)

	got, _, err := s.PublicMap(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave", got.OwnerID)

	_, err = s.SetSharing(ctx, "dave", model.SharingPrivate)
	require.NoError(t, err)
	_, _, err = s.PublicMap(ctx, m.ID)
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestLoaderRunsMigrator(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "migrated.db")
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))
	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	s, err := loader(ctx)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertPoints(ctx, "erin", []model.Point{point("9", ptr("x"), nil)}))
}
