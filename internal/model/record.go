package model

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ContentRecord is a decoded chat log entry. Records are read-only inputs to
// the correlator.
type ContentRecord struct {
	ID       string
	Username string
	Chat     string
	Time     time.Time
	// RawTime is the timestamp exactly as it appeared in the log.
	RawTime  string
	Text     string
	File     string
	Location string
}

// LocationCandidate is an accepted WGS84 coordinate pair.
type LocationCandidate struct {
	Lon float64
	Lat float64
}

// Point returns the candidate as an orb point (lon, lat).
func (l LocationCandidate) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

// Feature is the result of pairing one location record with content.
type Feature struct {
	// ID is the location record id.
	ID       string
	Geometry orb.Point
	Message  *string
	Username string
	Chat     string
	Time     string
	File     *string
	// Related is the id of the record whose content was used. It equals ID
	// when the location paired with itself.
	Related string
}

// SelfPaired reports whether the feature used its own record as content.
func (f Feature) SelfPaired() bool {
	return f.Related == f.ID
}

// GeoJSON renders the feature as a GeoJSON Feature.
func (f Feature) GeoJSON() *geojson.Feature {
	g := geojson.NewFeature(f.Geometry)
	g.Properties["id"] = f.ID
	g.Properties["message"] = nullable(f.Message)
	g.Properties["username"] = f.Username
	g.Properties["chat"] = f.Chat
	g.Properties["time"] = f.Time
	g.Properties["file"] = nullable(f.File)
	g.Properties["related"] = f.Related
	return g
}

// FeatureCollection wraps features into a GeoJSON FeatureCollection.
func FeatureCollection(features []Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f.GeoJSON())
	}
	return fc
}

// StringPtr returns nil for an empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
