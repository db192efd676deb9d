package ingest

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/decoder"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrysnapshot "github.com/chirino/chatmap-ingest/internal/registry/snapshot"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/chirino/chatmap-ingest/internal/snapshot"
)

// Sink persists the features produced for one owner in one cycle and
// returns how many were written.
type Sink interface {
	Write(ctx context.Context, owner string, features []model.Feature) (int, error)
}

// UpsertSink writes features as points keyed by location id.
type UpsertSink struct {
	Store registrystore.PointStore
}

func (s UpsertSink) Write(ctx context.Context, owner string, features []model.Feature) (int, error) {
	points := make([]model.Point, 0, len(features))
	for _, f := range features {
		t, err := decoder.ParseTime(f.Time)
		if err != nil {
			log.Warn("Skipping point with unparseable time", "owner", owner, "id", f.ID, "time", f.Time)
			continue
		}
		points = append(points, model.Point{
			ID:       f.ID,
			Geometry: f.Geometry,
			Message:  f.Message,
			Username: f.Username,
			Time:     t,
			File:     f.File,
		})
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.Store.UpsertPoints(ctx, owner, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

// SnapshotSink merges features into the owner's stored FeatureCollection.
type SnapshotSink struct {
	Store registrysnapshot.Store
}

func (s SnapshotSink) Write(ctx context.Context, owner string, features []model.Feature) (int, error) {
	if len(features) == 0 {
		return 0, nil
	}
	prev, err := s.Store.Load(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	merged := snapshot.Merge(prev, model.FeatureCollection(features))
	if err := s.Store.Save(ctx, owner, merged); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return len(features), nil
}
