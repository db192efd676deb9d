package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrymigrate "github.com/chirino/chatmap-ingest/internal/registry/migrate"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.PointStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if telemetry.DBPoolMaxConnections != nil {
				telemetry.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if telemetry.DBPoolOpenConnections != nil {
							telemetry.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return New(db), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements PointStore on PostGIS.
type PostgresStore struct {
	db *gorm.DB
}

var _ registrystore.PointStore = (*PostgresStore)(nil)

// New wraps an open gorm connection. The schema must already be migrated.
func New(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectMap = `SELECT id, name, sharing::text AS sharing, owner_id FROM maps`

// pointRow is a points row with the geometry split into coordinates.
type pointRow struct {
	ID       string
	Lon      float64
	Lat      float64
	Message  *string
	Username string
	Time     time.Time
	File     *string
	MapID    uuid.UUID
}

func (r pointRow) toModel() model.Point {
	return model.Point{
		ID:       r.ID,
		Geometry: orb.Point{r.Lon, r.Lat},
		Message:  r.Message,
		Username: r.Username,
		Time:     r.Time,
		File:     r.File,
		MapID:    r.MapID,
	}
}

func (s *PostgresStore) GetOrCreateMap(ctx context.Context, ownerID string) (*model.Map, error) {
	return registrystore.GetOrCreate(ctx, ownerID, s.GetMapByOwner, s.insertMap, isUniqueViolation)
}

func (s *PostgresStore) insertMap(ctx context.Context, m *model.Map) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(
			`INSERT INTO maps (id, name, sharing, owner_id) VALUES (?, ?, CAST(? AS map_sharing), ?)`,
			m.ID, m.Name, string(m.Sharing), m.OwnerID,
		).Error
	})
}

func (s *PostgresStore) GetMapByOwner(ctx context.Context, ownerID string) (*model.Map, error) {
	var maps []model.Map
	if err := s.db.WithContext(ctx).Raw(selectMap+` WHERE owner_id = ?`, ownerID).Scan(&maps).Error; err != nil {
		return nil, fmt.Errorf("select map for owner %s: %w", ownerID, err)
	}
	if len(maps) == 0 {
		return nil, &registrystore.NotFoundError{Resource: "map", ID: ownerID}
	}
	return &maps[0], nil
}

func (s *PostgresStore) getMap(ctx context.Context, mapID uuid.UUID) (*model.Map, error) {
	var maps []model.Map
	if err := s.db.WithContext(ctx).Raw(selectMap+` WHERE id = ?`, mapID).Scan(&maps).Error; err != nil {
		return nil, fmt.Errorf("select map %s: %w", mapID, err)
	}
	if len(maps) == 0 {
		return nil, &registrystore.NotFoundError{Resource: "map", ID: mapID.String()}
	}
	return &maps[0], nil
}

const upsertPoint = `
INSERT INTO points (id, geom, message, username, time, file, map_id)
VALUES (?, ST_GeomFromText(?, 4326), ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    geom     = excluded.geom,
    message  = COALESCE(excluded.message, points.message),
    username = excluded.username,
    time     = excluded.time,
    file     = COALESCE(excluded.file, points.file),
    map_id   = excluded.map_id`

func (s *PostgresStore) UpsertPoints(ctx context.Context, ownerID string, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	m, err := s.GetOrCreateMap(ctx, ownerID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range points {
			err := tx.Exec(upsertPoint,
				p.ID, wkt.MarshalString(p.Geometry), p.Message, p.Username, p.Time.UTC(), p.File, m.ID,
			).Error
			if err != nil {
				return fmt.Errorf("upsert point %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ExportMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error) {
	m, err := s.getMap(ctx, mapID)
	if err != nil {
		return nil, nil, err
	}
	var rows []pointRow
	err = s.db.WithContext(ctx).Raw(`
		SELECT id, ST_X(geom) AS lon, ST_Y(geom) AS lat, message, username, time, file, map_id
		FROM points WHERE map_id = ? ORDER BY time, id`, mapID).Scan(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("select points for map %s: %w", mapID, err)
	}
	points := make([]model.Point, len(rows))
	for i, r := range rows {
		points[i] = r.toModel()
	}
	return m, points, nil
}

func (s *PostgresStore) SetSharing(ctx context.Context, ownerID string, sharing model.Sharing) (*model.Map, error) {
	if !sharing.Valid() {
		return nil, &registrystore.ValidationError{Field: "sharing", Message: fmt.Sprintf("unknown mode %q", sharing)}
	}
	res := s.db.WithContext(ctx).Exec(
		`UPDATE maps SET sharing = CAST(? AS map_sharing) WHERE owner_id = ?`, string(sharing), ownerID)
	if res.Error != nil {
		return nil, fmt.Errorf("update sharing for owner %s: %w", ownerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Resource: "map", ID: ownerID}
	}
	return s.GetMapByOwner(ctx, ownerID)
}

func (s *PostgresStore) PublicMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error) {
	m, points, err := s.ExportMap(ctx, mapID)
	if err != nil {
		return nil, nil, err
	}
	if m.Sharing != model.SharingPublic {
		return nil, nil, &registrystore.NotFoundError{Resource: "map", ID: mapID.String()}
	}
	return m, points, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
