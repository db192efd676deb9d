// Package correlate pairs location records with the nearest content record
// from the same participant.
package correlate

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/model"
)

// Tolerance is the exclusive upper bound on the time distance between a
// location record and the content it is paired with.
const Tolerance = 30 * time.Minute

// Context holds the state of a single correlation pass. It must not be reused
// across passes.
type Context struct {
	locations map[int]model.LocationCandidate
	claimed   map[string]struct{}
}

// NewContext returns an empty pass context.
func NewContext() *Context {
	return &Context{
		locations: map[int]model.LocationCandidate{},
		claimed:   map[string]struct{}{},
	}
}

// Correlate runs one pass over records with a fresh context.
func Correlate(records []model.ContentRecord) []model.Feature {
	return NewContext().Pair(records)
}

// Claimed reports whether id has been used as content by an earlier feature.
func (c *Context) Claimed(id string) bool {
	_, ok := c.claimed[id]
	return ok
}

// Pair emits one feature per location record, in record order.
func (c *Context) Pair(records []model.ContentRecord) []model.Feature {
	indices := c.index(records)
	features := make([]model.Feature, 0, len(indices))
	for _, i := range indices {
		chosen := c.closest(records, i)
		rec := records[chosen]
		if chosen != i {
			c.claimed[rec.ID] = struct{}{}
		}

		f := model.Feature{
			ID:       records[i].ID,
			Geometry: c.locations[i].Point(),
			Message:  model.StringPtr(rec.Text),
			Username: rec.Username,
			Chat:     rec.Chat,
			Time:     rec.RawTime,
			File:     model.StringPtr(rec.File),
			Related:  rec.ID,
		}
		if !validTime(f.Time) {
			log.Warn("Skipping feature with invalid time", "id", f.ID, "time", f.Time)
			continue
		}
		features = append(features, f)
	}
	return features
}

// index records every location index in ascending order.
func (c *Context) index(records []model.ContentRecord) []int {
	var indices []int
	for i, rec := range records {
		loc, ok := ExtractLocation(rec.Location)
		if !ok {
			continue
		}
		c.locations[i] = loc
		indices = append(indices, i)
	}
	return indices
}

func (c *Context) isLocation(i int) bool {
	_, ok := c.locations[i]
	return ok
}

type candidate struct {
	index int
	delta time.Duration
}

// scan walks outwards from the location at i, one step per direction per
// round, and returns the first qualifying record found in each direction.
// A direction stops at the bounds of records or at a location shared by the
// same participant within Tolerance. Other participants' locations are
// stepped over.
func (c *Context) scan(records []model.ContentRecord, i int) (back, fwd *candidate) {
	b, f := i-1, i+1
	backDone, fwdDone := false, false
	for (back == nil && !backDone) || (fwd == nil && !fwdDone) {
		if back == nil && !backDone {
			back, backDone = c.step(records, i, b)
			b--
		}
		if fwd == nil && !fwdDone {
			fwd, fwdDone = c.step(records, i, f)
			f++
		}
	}
	return back, fwd
}

// step inspects index j for the location at i.
func (c *Context) step(records []model.ContentRecord, i, j int) (*candidate, bool) {
	if j < 0 || j >= len(records) {
		return nil, true
	}
	if c.isLocation(j) {
		_, ok := near(records, i, j)
		return nil, ok
	}
	return qualify(records, i, j), false
}

// closest picks the content record for the location at i, returning i itself
// when it has to self-pair.
func (c *Context) closest(records []model.ContentRecord, i int) int {
	back, fwd := c.scan(records, i)

	var first, second *candidate
	switch {
	case back == nil && fwd == nil:
		return i
	case fwd == nil:
		first = back
	case back == nil:
		first = fwd
	case fwd.delta < back.delta:
		first, second = fwd, back
	default:
		first, second = back, fwd
	}

	if !c.Claimed(records[first.index].ID) {
		return first.index
	}
	if second != nil && !c.Claimed(records[second.index].ID) {
		return second.index
	}
	return i
}

// qualify returns j as a candidate for the location at i when it comes from
// the same participant, has content and lies within Tolerance.
func qualify(records []model.ContentRecord, i, j int) *candidate {
	if !hasContent(records[j]) {
		return nil
	}
	delta, ok := near(records, i, j)
	if !ok {
		return nil
	}
	return &candidate{index: j, delta: delta}
}

// near reports whether j shares the participant and chat of i and lies
// within Tolerance of it.
func near(records []model.ContentRecord, i, j int) (time.Duration, bool) {
	loc, rec := records[i], records[j]
	if rec.Username != loc.Username || rec.Chat != loc.Chat {
		return 0, false
	}
	delta := loc.Time.Sub(rec.Time)
	if delta < 0 {
		delta = -delta
	}
	return delta, delta < Tolerance
}

func hasContent(rec model.ContentRecord) bool {
	return rec.Text != "" || rec.File != ""
}

// validTime rejects empty or bare integer timestamps.
func validTime(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	_, err := strconv.ParseInt(raw, 10, 64)
	return err != nil
}
