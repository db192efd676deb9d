// Package sqlite registers the "sqlite" point store. Coordinates are kept in
// plain lon/lat columns, so it needs no spatial extension.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrymigrate "github.com/chirino/chatmap-ingest/internal/registry/migrate"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.PointStore, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(cfg.DBURL)
			if err != nil {
				return nil, err
			}
			return New(db), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := Migrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}

// Open connects to the sqlite database at dsn with WAL journaling and
// foreign keys enabled. An empty dsn opens a private in-memory database.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "file::memory:"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_journal=WAL&_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates the maps and points tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Map{}, &pointRecord{})
}

type pointRecord struct {
	ID       string    `gorm:"primaryKey"`
	Lon      float64   `gorm:"not null"`
	Lat      float64   `gorm:"not null"`
	Message  *string
	Username string    `gorm:"not null"`
	Time     time.Time `gorm:"not null"`
	File     *string
	MapID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Map      model.Map `gorm:"foreignKey:MapID;constraint:OnDelete:CASCADE"`
}

func (pointRecord) TableName() string { return "points" }

// SQLiteStore implements PointStore on sqlite.
type SQLiteStore struct {
	db *gorm.DB
}

var _ registrystore.PointStore = (*SQLiteStore)(nil)

// New wraps an open connection. Call Migrate first on a fresh database.
func New(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetOrCreateMap(ctx context.Context, ownerID string) (*model.Map, error) {
	return registrystore.GetOrCreate(ctx, ownerID, s.GetMapByOwner, s.insertMap, isUniqueViolation)
}

func (s *SQLiteStore) insertMap(ctx context.Context, m *model.Map) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
}

func (s *SQLiteStore) GetMapByOwner(ctx context.Context, ownerID string) (*model.Map, error) {
	var m model.Map
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "map", ID: ownerID}
	}
	if err != nil {
		return nil, fmt.Errorf("select map for owner %s: %w", ownerID, err)
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertPoints(ctx context.Context, ownerID string, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	m, err := s.GetOrCreateMap(ctx, ownerID)
	if err != nil {
		return err
	}
	records := make([]pointRecord, len(points))
	for i, p := range points {
		records[i] = pointRecord{
			ID:       p.ID,
			Lon:      p.Geometry.Lon(),
			Lat:      p.Geometry.Lat(),
			Message:  p.Message,
			Username: p.Username,
			Time:     p.Time.UTC(),
			File:     p.File,
			MapID:    m.ID,
		}
	}
	err = s.db.WithContext(ctx).Omit("Map").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "lon"}, Value: gorm.Expr("excluded.lon")},
			{Column: clause.Column{Name: "lat"}, Value: gorm.Expr("excluded.lat")},
			{Column: clause.Column{Name: "message"}, Value: gorm.Expr("COALESCE(excluded.message, points.message)")},
			{Column: clause.Column{Name: "username"}, Value: gorm.Expr("excluded.username")},
			{Column: clause.Column{Name: "time"}, Value: gorm.Expr("excluded.time")},
			{Column: clause.Column{Name: "file"}, Value: gorm.Expr("COALESCE(excluded.file, points.file)")},
			{Column: clause.Column{Name: "map_id"}, Value: gorm.Expr("excluded.map_id")},
		},
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("upsert points for owner %s: %w", ownerID, err)
	}
	return nil
}

func (s *SQLiteStore) getMap(ctx context.Context, mapID uuid.UUID) (*model.Map, error) {
	var m model.Map
	err := s.db.WithContext(ctx).Where("id = ?", mapID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "map", ID: mapID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("select map %s: %w", mapID, err)
	}
	return &m, nil
}

func (s *SQLiteStore) ExportMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error) {
	m, err := s.getMap(ctx, mapID)
	if err != nil {
		return nil, nil, err
	}
	var records []pointRecord
	if err := s.db.WithContext(ctx).Where("map_id = ?", mapID).Order("time, id").Find(&records).Error; err != nil {
		return nil, nil, fmt.Errorf("select points for map %s: %w", mapID, err)
	}
	points := make([]model.Point, len(records))
	for i, r := range records {
		points[i] = model.Point{
			ID:       r.ID,
			Geometry: orb.Point{r.Lon, r.Lat},
			Message:  r.Message,
			Username: r.Username,
			Time:     r.Time,
			File:     r.File,
			MapID:    r.MapID,
		}
	}
	return m, points, nil
}

func (s *SQLiteStore) SetSharing(ctx context.Context, ownerID string, sharing model.Sharing) (*model.Map, error) {
	if !sharing.Valid() {
		return nil, &registrystore.ValidationError{Field: "sharing", Message: fmt.Sprintf("unknown mode %q", sharing)}
	}
	res := s.db.WithContext(ctx).Model(&model.Map{}).Where("owner_id = ?", ownerID).Update("sharing", sharing)
	if res.Error != nil {
		return nil, fmt.Errorf("update sharing for owner %s: %w", ownerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Resource: "map", ID: ownerID}
	}
	return s.GetMapByOwner(ctx, ownerID)
}

func (s *SQLiteStore) PublicMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error) {
	m, points, err := s.ExportMap(ctx, mapID)
	if err != nil {
		return nil, nil, err
	}
	if m.Sharing != model.SharingPublic {
		return nil, nil, &registrystore.NotFoundError{Resource: "map", ID: mapID.String()}
	}
	return m, points, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
