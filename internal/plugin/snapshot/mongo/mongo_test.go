package mongo_test

import (
	"context"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/model"
	snapshotmongo "github.com/chirino/chatmap-ingest/internal/plugin/snapshot/mongo"
	"github.com/chirino/chatmap-ingest/internal/snapshot"
	"github.com/chirino/chatmap-ingest/internal/testutil/testmongo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoSnapshotRoundTripAndMerge(t *testing.T) {
	ctx := context.Background()
	store := snapshotmongo.New(testmongo.Database(t))
	t.Cleanup(func() { _ = store.Close() })

	empty, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, empty.Features)

	msg := "hi"
	first := model.FeatureCollection([]model.Feature{{
		ID: "2", Related: "1", Message: &msg, Username: "alice", Chat: "c1",
		Time: "2024-05-01T12:05:00Z", Geometry: orb.Point{-64.263, -31.006},
	}})
	require.NoError(t, store.Save(ctx, "alice", first))

	loaded, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, loaded.Features, 1)
	f := loaded.Features[0]
	assert.Equal(t, "2", f.Properties.MustString("id"))
	assert.Equal(t, "hi", f.Properties.MustString("message"))
	assert.Equal(t, orb.Point{-64.263, -31.006}, f.Geometry)

	second := model.FeatureCollection([]model.Feature{{
		ID: "4", Related: "4", Username: "alice", Chat: "c1",
		Time: "2024-05-01T13:00:00Z", Geometry: orb.Point{-64.1, -31.2},
	}})
	require.NoError(t, store.Save(ctx, "alice", snapshot.Merge(loaded, second)))

	loaded, err = store.Load(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, loaded.Features, 2)
	assert.Equal(t, "4", loaded.Features[0].Properties.MustString("id"))
	assert.Nil(t, loaded.Features[0].Properties["message"])
}
