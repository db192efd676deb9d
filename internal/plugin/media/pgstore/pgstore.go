package pgstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "postgres",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrymedia.MediaStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("pgstore: CHATMAP_DB_URL is required")
	}
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("pgstore: %w", err)
	}
	return New(ctx, db)
}

// New migrates the media_files table on db and returns a store over it.
func New(ctx context.Context, db *gorm.DB) (*PgMediaStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&mediaRecord{}); err != nil {
		return nil, fmt.Errorf("pgstore: auto-migrate media_files: %w", err)
	}
	return &PgMediaStore{db: db}, nil
}

type PgMediaStore struct {
	db *gorm.DB
}

type mediaRecord struct {
	Key         string    `gorm:"column:key;primaryKey"`
	ContentType string    `gorm:"column:content_type"`
	Size        int64     `gorm:"column:size;not null"`
	Data        []byte    `gorm:"column:data;type:bytea;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (mediaRecord) TableName() string { return "media_files" }

func (s *PgMediaStore) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&mediaRecord{}).Where("key = ?", key).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("pgstore: exists %s: %w", key, err)
	}
	return count > 0, nil
}

func (s *PgMediaStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	buf := bytes.NewBuffer(make([]byte, 0, max(size, 0)))
	n, err := io.Copy(buf, data)
	if err != nil {
		return fmt.Errorf("pgstore: read %s: %w", key, err)
	}
	rec := mediaRecord{Key: key, ContentType: contentType, Size: n, Data: buf.Bytes()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "size", "data"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("pgstore: put %s: %w", key, err)
	}
	return nil
}

func (s *PgMediaStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var rec mediaRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registrymedia.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(rec.Data)), nil
}

func (s *PgMediaStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&mediaRecord{}).Error
}

var _ registrymedia.MediaStore = (*PgMediaStore)(nil)
