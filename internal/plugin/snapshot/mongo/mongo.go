// Package mongo registers the "mongo" snapshot store. Each owner's
// FeatureCollection is stored as a native document in the "snapshots"
// collection, keyed by owner id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrysnapshot "github.com/chirino/chatmap-ingest/internal/registry/snapshot"
	"github.com/paulmach/orb/geojson"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrysnapshot.Register(registrysnapshot.Plugin{
		Name:   "mongo",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrysnapshot.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.MongoURL == "" {
		return nil, fmt.Errorf("mongo snapshot: CHATMAP_MONGO_URL is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("mongo snapshot: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo snapshot: ping failed: %w", err)
	}
	return New(client.Database(cfg.MongoDatabase)), nil
}

// New stores snapshots in db.snapshots.
func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection("snapshots")}
}

type Store struct {
	coll *mongo.Collection
}

var _ registrysnapshot.Store = (*Store)(nil)

type snapshotDoc struct {
	OwnerID    string    `bson:"_id"`
	Collection bson.Raw  `bson:"collection"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func (s *Store) Load(ctx context.Context, ownerID string) (*geojson.FeatureCollection, error) {
	var doc snapshotDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return geojson.NewFeatureCollection(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo snapshot: find %s: %w", ownerID, err)
	}
	data, err := bson.MarshalExtJSON(doc.Collection, false, false)
	if err != nil {
		return nil, fmt.Errorf("mongo snapshot: encode %s: %w", ownerID, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("mongo snapshot: decode %s: %w", ownerID, err)
	}
	return fc, nil
}

func (s *Store) Save(ctx context.Context, ownerID string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("mongo snapshot: marshal %s: %w", ownerID, err)
	}
	var body bson.D
	if err := bson.UnmarshalExtJSON(data, false, &body); err != nil {
		return fmt.Errorf("mongo snapshot: convert %s: %w", ownerID, err)
	}
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": ownerID},
		bson.M{"$set": bson.M{"collection": body, "updatedAt": time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo snapshot: upsert %s: %w", ownerID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.coll.Database().Client().Disconnect(context.Background())
}
