// Package decoder turns raw log entries into typed content records.
package decoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
)

// DecodeError describes an entry (or, when Batch is set, a whole batch) that
// could not be decoded.
type DecodeError struct {
	EntryID string
	Batch   bool
	Reason  string
}

func (e *DecodeError) Error() string {
	if e.Batch {
		return fmt.Sprintf("decode batch: %s", e.Reason)
	}
	return fmt.Sprintf("decode entry %s: %s", e.EntryID, e.Reason)
}

// IsBatchError reports whether err carries a structural (whole batch) decode failure.
func IsBatchError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Batch
}

// Field names, with the aliases used by the chat connectors.
var (
	usernameFields = []string{"username", "from"}
	timeFields     = []string{"time", "date"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

// Decode converts entries, in log order, into records.
//
// Entries missing username, chat or time are dropped and logged; the returned
// error then joins one *DecodeError per dropped entry alongside the surviving
// records. A structural problem (empty id, nil field map, ids out of order)
// returns no records and a *DecodeError with Batch set: the caller must treat
// the whole batch as empty for this cycle.
func Decode(entries []registrysource.Entry) ([]model.ContentRecord, error) {
	if err := checkStructure(entries); err != nil {
		return nil, err
	}

	records := make([]model.ContentRecord, 0, len(entries))
	var dropped []error
	for _, e := range entries {
		rec, err := decodeEntry(e)
		if err != nil {
			log.Warn("Dropping log entry", "id", e.ID, "err", err)
			dropped = append(dropped, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errors.Join(dropped...)
}

func checkStructure(entries []registrysource.Entry) error {
	var prev streamID
	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return &DecodeError{Batch: true, Reason: fmt.Sprintf("entry %d has no id", i)}
		}
		if e.Values == nil {
			return &DecodeError{Batch: true, Reason: fmt.Sprintf("entry %s has no fields", e.ID)}
		}
		id, ok := parseStreamID(e.ID)
		if !ok {
			// Non stream ids carry no ordering we can verify.
			continue
		}
		if i > 0 && !prev.less(id) {
			return &DecodeError{Batch: true, Reason: fmt.Sprintf("entry %s is out of order", e.ID)}
		}
		prev = id
	}
	return nil
}

func decodeEntry(e registrysource.Entry) (model.ContentRecord, error) {
	rec := model.ContentRecord{ID: e.ID}
	if id := field(e.Values, "id"); id != "" {
		rec.ID = id
	}
	rec.Username = firstField(e.Values, usernameFields)
	rec.Chat = field(e.Values, "chat")
	rec.RawTime = firstField(e.Values, timeFields)
	rec.Text = field(e.Values, "text")
	rec.File = field(e.Values, "file")
	rec.Location = field(e.Values, "location")

	switch {
	case rec.Username == "":
		return rec, &DecodeError{EntryID: e.ID, Reason: "missing username"}
	case rec.Chat == "":
		return rec, &DecodeError{EntryID: e.ID, Reason: "missing chat"}
	case rec.RawTime == "":
		return rec, &DecodeError{EntryID: e.ID, Reason: "missing time"}
	}
	t, err := ParseTime(rec.RawTime)
	if err != nil {
		return rec, &DecodeError{EntryID: e.ID, Reason: err.Error()}
	}
	rec.Time = t
	return rec, nil
}

// ParseTime parses a log timestamp. The offset is required.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", raw)
}

func firstField(values map[string]interface{}, names []string) string {
	for _, name := range names {
		if v := field(values, name); v != "" {
			return v
		}
	}
	return ""
}

func field(values map[string]interface{}, name string) string {
	switch v := values[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// streamID is a redis stream id "<ms>-<seq>".
type streamID struct {
	ms  uint64
	seq uint64
}

func (a streamID) less(b streamID) bool {
	if a.ms != b.ms {
		return a.ms < b.ms
	}
	return a.seq < b.seq
}

func parseStreamID(raw string) (streamID, bool) {
	msPart, seqPart, found := strings.Cut(raw, "-")
	if !found {
		return streamID{}, false
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return streamID{}, false
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return streamID{}, false
	}
	return streamID{ms: ms, seq: seq}, true
}
