package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnique = errors.New("duplicate key")

func isUnique(err error) bool { return errors.Is(err, errUnique) }

func notFound(_ context.Context, owner string) (*model.Map, error) {
	return nil, &store.NotFoundError{Resource: "map", ID: owner}
}

func TestGetOrCreateInsertsMissingMap(t *testing.T) {
	var inserted *model.Map
	m, err := store.GetOrCreate(context.Background(), "alice", notFound,
		func(_ context.Context, m *model.Map) error { inserted = m; return nil }, isUnique)
	require.NoError(t, err)
	require.Same(t, inserted, m)
	assert.Equal(t, "alice", m.OwnerID)
	assert.Equal(t, model.SharingPrivate, m.Sharing)
	assert.Equal(t, model.DefaultMapName, m.Name)
}

func TestGetOrCreateReselectsAfterConflict(t *testing.T) {
	existing := store.NewMap("alice")
	finds := 0
	find := func(_ context.Context, owner string) (*model.Map, error) {
		finds++
		if finds == 1 {
			return notFound(context.Background(), owner)
		}
		return existing, nil
	}
	m, err := store.GetOrCreate(context.Background(), "alice", find,
		func(context.Context, *model.Map) error { return errUnique }, isUnique)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, m.ID)
	assert.Equal(t, 2, finds)
}

func TestGetOrCreateGivesUpAfterOneRetry(t *testing.T) {
	inserts := 0
	_, err := store.GetOrCreate(context.Background(), "alice", notFound,
		func(context.Context, *model.Map) error { inserts++; return errUnique }, isUnique)
	var conflict *store.PersistenceConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "alice", conflict.OwnerID)
	assert.ErrorIs(t, err, errUnique)
	assert.Equal(t, 2, inserts)
}

func TestGetOrCreatePropagatesOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := store.GetOrCreate(context.Background(), "alice", notFound,
		func(context.Context, *model.Map) error { return boom }, isUnique)
	require.ErrorIs(t, err, boom)

	_, err = store.GetOrCreate(context.Background(), "alice",
		func(context.Context, string) (*model.Map, error) { return nil, boom }, nil, isUnique)
	require.ErrorIs(t, err, boom)
}

func TestGetOrCreateRejectsEmptyOwner(t *testing.T) {
	_, err := store.GetOrCreate(context.Background(), "", notFound, nil, isUnique)
	var ve *store.ValidationError
	require.ErrorAs(t, err, &ve)
}
