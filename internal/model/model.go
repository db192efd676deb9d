package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Sharing controls who may read a map.
type Sharing string

const (
	SharingPrivate Sharing = "private"
	SharingPublic  Sharing = "public"
)

// Valid reports whether s is a known sharing mode.
func (s Sharing) Valid() bool {
	return s == SharingPrivate || s == SharingPublic
}

// Toggle returns the opposite sharing mode.
func (s Sharing) Toggle() Sharing {
	if s == SharingPublic {
		return SharingPrivate
	}
	return SharingPublic
}

// DefaultMapName is assigned to maps created by the ingestion pipeline.
const DefaultMapName = "Untitled"

// Map is the per-owner collection of persisted points.
type Map struct {
	ID      uuid.UUID `json:"id"      gorm:"primaryKey;type:uuid"`
	Name    string    `json:"name"    gorm:"not null;default:Untitled"`
	Sharing Sharing   `json:"sharing" gorm:"not null;default:private"`
	OwnerID string    `json:"ownerId" gorm:"column:owner_id;not null;uniqueIndex:uq_maps_owner_id"`
}

func (Map) TableName() string { return "maps" }

// Point is a correlated location persisted into a Map. ID is the location
// record id and is the idempotency key across polling cycles.
type Point struct {
	ID       string
	Geometry orb.Point
	Message  *string
	Username string
	Time     time.Time
	File     *string
	MapID    uuid.UUID
}

// GeoJSON renders the point the way map readers expect it.
func (p Point) GeoJSON() *geojson.Feature {
	f := geojson.NewFeature(p.Geometry)
	f.Properties["id"] = p.ID
	f.Properties["username_id"] = p.Username
	f.Properties["time"] = p.Time.UTC().Format(time.RFC3339)
	f.Properties["message"] = nullable(p.Message)
	f.Properties["file"] = nullable(p.File)
	return f
}

// MapCollection renders a map and its points as a FeatureCollection carrying the
// map id and sharing mode as foreign members.
func MapCollection(m *Map, points []Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		fc.Append(p.GeoJSON())
	}
	if m != nil {
		fc.ExtraMembers = geojson.Properties{
			"id":      m.ID.String(),
			"sharing": string(m.Sharing),
		}
	}
	return fc
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
