package metrics

import (
	"context"
	"time"

	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
	"github.com/google/uuid"
)

// Wrap returns a PointStore that records StoreLatency for every operation.
func Wrap(inner store.PointStore) store.PointStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.PointStore
}

func observe(op string, start time.Time) {
	if telemetry.StoreLatency == nil {
		return
	}
	telemetry.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) GetOrCreateMap(ctx context.Context, ownerID string) (*model.Map, error) {
	defer observe("get_or_create_map", time.Now())
	return m.inner.GetOrCreateMap(ctx, ownerID)
}

func (m *metricsStore) UpsertPoints(ctx context.Context, ownerID string, points []model.Point) error {
	defer observe("upsert_points", time.Now())
	return m.inner.UpsertPoints(ctx, ownerID, points)
}

func (m *metricsStore) GetMapByOwner(ctx context.Context, ownerID string) (*model.Map, error) {
	defer observe("get_map_by_owner", time.Now())
	return m.inner.GetMapByOwner(ctx, ownerID)
}

func (m *metricsStore) ExportMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error) {
	defer observe("export_map", time.Now())
	return m.inner.ExportMap(ctx, mapID)
}

func (m *metricsStore) SetSharing(ctx context.Context, ownerID string, sharing model.Sharing) (*model.Map, error) {
	defer observe("set_sharing", time.Now())
	return m.inner.SetSharing(ctx, ownerID, sharing)
}

func (m *metricsStore) PublicMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error) {
	defer observe("public_map", time.Now())
	return m.inner.PublicMap(ctx, mapID)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
