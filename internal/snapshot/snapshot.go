// Package snapshot merges whole FeatureCollections for the snapshot ingest
// mode, where each owner's map is kept as one GeoJSON document.
package snapshot

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Merge returns every feature of next followed by the features of prev that
// next does not replace. A previous feature is replaced when its id equals
// the id or the related id of any feature in next. Merging the result with
// next again yields the same collection.
func Merge(prev, next *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if next != nil {
		out.Features = append(out.Features, next.Features...)
	}
	if prev == nil {
		return out
	}

	replaced := make(map[string]struct{}, 2*len(out.Features))
	for _, f := range out.Features {
		if id, ok := property(f, "id"); ok {
			replaced[id] = struct{}{}
		}
		if rel, ok := property(f, "related"); ok {
			replaced[rel] = struct{}{}
		}
	}
	for _, f := range prev.Features {
		if id, ok := property(f, "id"); ok {
			if _, gone := replaced[id]; gone {
				continue
			}
		}
		out.Features = append(out.Features, f)
	}
	return out
}

func property(f *geojson.Feature, name string) (string, bool) {
	if f == nil || f.Properties == nil {
		return "", false
	}
	v, ok := f.Properties[name]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
