package correlate

import (
	"math"
	"regexp"
	"strconv"

	"github.com/chirino/chatmap-ingest/internal/model"
)

// locationPattern matches "lat,lon" the way the chat connectors write it.
var locationPattern = regexp.MustCompile(`([-+]?(?:[1-8]?\d(?:\.\d+)?|90(?:\.0+)?)),\s*([-+]?(?:180(?:\.0+)?|(?:1[0-7]\d|[1-9]?\d)(?:\.\d+)?))`)

// ExtractLocation parses raw location text. Only pairs where both numbers have
// a non-zero fractional part are accepted, so integer pairs such as phone
// numbers or "40,-70" never become locations.
func ExtractLocation(raw string) (model.LocationCandidate, bool) {
	if raw == "" {
		return model.LocationCandidate{}, false
	}
	m := locationPattern.FindStringSubmatch(raw)
	if m == nil {
		return model.LocationCandidate{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.LocationCandidate{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return model.LocationCandidate{}, false
	}
	if !fractional(lat) || !fractional(lon) {
		return model.LocationCandidate{}, false
	}
	return model.LocationCandidate{Lon: lon, Lat: lat}, true
}

func fractional(v float64) bool {
	return math.Mod(v, 1) != 0
}
