package decoder

import (
	"errors"
	"testing"
	"time"

	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, kv ...string) registrysource.Entry {
	values := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		values[kv[i]] = kv[i+1]
	}
	return registrysource.Entry{ID: id, Values: values}
}

func TestDecode_MapsFieldsAndAliases(t *testing.T) {
	records, err := Decode([]registrysource.Entry{
		entry("1700000000000-0", "username", "alice", "chat", "c1", "time", "2024-03-01T10:00:00-03:00", "text", "hi"),
		entry("1700000000000-1", "from", "bob", "chat", "c1", "date", "2024-03-01 10:05:00-03:00", "location", "-31.006,-64.263", "id", "42"),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "1700000000000-0", records[0].ID)
	assert.Equal(t, "alice", records[0].Username)
	assert.Equal(t, "hi", records[0].Text)
	assert.Equal(t, "2024-03-01T10:00:00-03:00", records[0].RawTime)

	assert.Equal(t, "42", records[1].ID)
	assert.Equal(t, "bob", records[1].Username)
	assert.Equal(t, "-31.006,-64.263", records[1].Location)
	assert.Equal(t, 5*time.Minute, records[1].Time.Sub(records[0].Time))
}

func TestDecode_AcceptsByteValues(t *testing.T) {
	records, err := Decode([]registrysource.Entry{{
		ID: "1-0",
		Values: map[string]interface{}{
			"username": []byte("alice"),
			"chat":     []byte("c1"),
			"time":     []byte("2024-03-01T10:00:00Z"),
		},
	}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Username)
}

func TestDecode_DropsIncompleteEntries(t *testing.T) {
	records, err := Decode([]registrysource.Entry{
		entry("1-0", "chat", "c1", "time", "2024-03-01T10:00:00Z"),
		entry("2-0", "username", "alice", "chat", "c1", "time", "yesterday"),
		entry("3-0", "username", "alice", "chat", "c1", "time", "2024-03-01T10:00:00Z"),
	})
	require.Error(t, err)
	assert.False(t, IsBatchError(err))
	require.Len(t, records, 1)
	assert.Equal(t, "3-0", records[0].ID)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "1-0", de.EntryID)
}

func TestDecode_StructuralFailureEmptiesBatch(t *testing.T) {
	cases := map[string][]registrysource.Entry{
		"empty id":     {entry("", "username", "a")},
		"nil fields":   {{ID: "1-0"}},
		"out of order": {entry("2-0", "username", "a"), entry("1-5", "username", "a")},
		"duplicate id": {entry("2-0", "username", "a"), entry("2-0", "username", "a")},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			records, err := Decode(entries)
			require.Error(t, err)
			assert.True(t, IsBatchError(err))
			assert.Empty(t, records)
		})
	}
}

func TestParseTime_RequiresOffset(t *testing.T) {
	_, err := ParseTime("2024-03-01T10:00:00")
	require.Error(t, err)

	ts, err := ParseTime("2024-03-01T10:00:00.250+02:00")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(ts.Nanosecond()))
}
