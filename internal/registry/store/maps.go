package store

import (
	"context"
	"errors"

	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/google/uuid"
)

// MapFinder looks up an owner's map, returning *NotFoundError when absent.
type MapFinder func(ctx context.Context, ownerID string) (*model.Map, error)

// MapInserter inserts a new map row. It reports unique violations on the
// owner column through isConflict.
type MapInserter func(ctx context.Context, m *model.Map) error

// GetOrCreate selects the owner's map and inserts it when missing. A unique
// violation on insert means a concurrent writer created it first, so the
// select is repeated once before giving up with *PersistenceConflictError.
func GetOrCreate(ctx context.Context, ownerID string, find MapFinder, insert MapInserter, isConflict func(error) bool) (*model.Map, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner", Message: "must not be empty"}
	}
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		m, err := find(ctx, ownerID)
		if err == nil {
			return m, nil
		}
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		m = NewMap(ownerID)
		err = insert(ctx, m)
		if err == nil {
			return m, nil
		}
		if !isConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, &PersistenceConflictError{OwnerID: ownerID, Err: lastErr}
}

// NewMap returns an unsaved private map for ownerID.
func NewMap(ownerID string) *model.Map {
	return &model.Map{
		ID:      uuid.New(),
		Name:    model.DefaultMapName,
		Sharing: model.SharingPrivate,
		OwnerID: ownerID,
	}
}
