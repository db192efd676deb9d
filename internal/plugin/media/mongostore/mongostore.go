package mongostore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"github.com/chirino/chatmap-ingest/internal/tempfiles"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "mongo",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrymedia.MediaStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.MongoURL == "" {
		return nil, fmt.Errorf("mongostore: CHATMAP_MONGO_URL is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("mongostore: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}
	return New(client.Database(cfg.MongoDatabase), cfg.ResolvedTempDir()), nil
}

// New stores media in the "media" GridFS bucket of db, one file per key.
func New(db *mongo.Database, tempDir string) *MongoMediaStore {
	return &MongoMediaStore{
		bucket:  db.GridFSBucket(options.GridFSBucket().SetName("media")),
		tempDir: tempDir,
	}
}

type MongoMediaStore struct {
	bucket  *mongo.GridFSBucket
	tempDir string
}

func (s *MongoMediaStore) fileIDs(ctx context.Context, key string) ([]interface{}, error) {
	cur, err := s.bucket.Find(ctx, bson.M{"filename": key})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []interface{}
	for cur.Next(ctx) {
		var doc struct {
			ID interface{} `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (s *MongoMediaStore) Exists(ctx context.Context, key string) (bool, error) {
	ids, err := s.fileIDs(ctx, key)
	if err != nil {
		return false, fmt.Errorf("mongostore: find %s: %w", key, err)
	}
	return len(ids) > 0, nil
}

// Put uploads the new revision first and then removes older revisions of key.
func (s *MongoMediaStore) Put(ctx context.Context, key string, data io.Reader, _ int64, _ string) error {
	previous, err := s.fileIDs(ctx, key)
	if err != nil {
		return fmt.Errorf("mongostore: find %s: %w", key, err)
	}
	if _, err := s.bucket.UploadFromStream(ctx, key, data); err != nil {
		return fmt.Errorf("mongostore: gridfs upload: %w", err)
	}
	for _, id := range previous {
		if err := s.bucket.Delete(ctx, id); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			return fmt.Errorf("mongostore: delete old revision of %s: %w", key, err)
		}
	}
	return nil
}

// Get spools the newest revision to a temp file so the download stream does
// not outlive the call.
func (s *MongoMediaStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ds, err := s.bucket.OpenDownloadStreamByName(ctx, key)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return nil, registrymedia.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: open %s: %w", key, err)
	}
	defer ds.Close()

	rc, _, err := tempfiles.Spool(s.tempDir, "chatmap-mongo-media-*", ds, 0)
	if err != nil {
		return nil, fmt.Errorf("mongostore: %w", err)
	}
	return rc, nil
}

func (s *MongoMediaStore) Delete(ctx context.Context, key string) error {
	ids, err := s.fileIDs(ctx, key)
	if err != nil {
		return fmt.Errorf("mongostore: find %s: %w", key, err)
	}
	for _, id := range ids {
		if err := s.bucket.Delete(ctx, id); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			return err
		}
	}
	return nil
}

var _ registrymedia.MediaStore = (*MongoMediaStore)(nil)
