package ingest_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/chatmap-ingest/internal/decrypt"
	"github.com/chirino/chatmap-ingest/internal/ingest"
	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/chirino/chatmap-ingest/internal/plugin/encrypt/gcm"
	"github.com/chirino/chatmap-ingest/internal/plugin/store/sqlite"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	entries map[string][]registrysource.Entry
	err     error
}

func (s *fakeSource) List(context.Context) ([]string, error) { return nil, nil }

func (s *fakeSource) Read(_ context.Context, owner string) ([]registrysource.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries[owner], nil
}

func (s *fakeSource) Trim(context.Context, string, time.Time) (int64, error) { return 0, nil }

type recordingSink struct {
	features []model.Feature
	err      error
}

func (s *recordingSink) Write(_ context.Context, _ string, features []model.Feature) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.features = append(s.features, features...)
	return len(features), nil
}

type fakeMedia struct {
	urls  map[string]string
	calls []string
}

func (m *fakeMedia) Resolve(_ context.Context, reference, owner string) (*string, error) {
	m.calls = append(m.calls, owner+"/"+reference)
	url, ok := m.urls[reference]
	if !ok {
		return nil, nil
	}
	return &url, nil
}

type panickingMedia struct{}

func (panickingMedia) Resolve(context.Context, string, string) (*string, error) {
	panic("boom")
}

func newDecryptor(t *testing.T) *decrypt.Decryptor {
	t.Helper()
	ring, err := gcm.NewKeyRing("gcm", [][]byte{[]byte("0123456789ABCDEF0123456789ABCDEF")})
	require.NoError(t, err)
	return decrypt.NewWithProvider(ring)
}

func encrypt(t *testing.T, d *decrypt.Decryptor, text string) string {
	t.Helper()
	out, err := d.EncryptText(text)
	require.NoError(t, err)
	return out
}

func entry(id string, kv ...string) registrysource.Entry {
	values := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		values[kv[i]] = kv[i+1]
	}
	return registrysource.Entry{ID: id, Values: values}
}

func scenario(t *testing.T, d *decrypt.Decryptor) []registrysource.Entry {
	return []registrysource.Entry{
		entry("1700000000000-0", "id", "1", "username", "alice", "chat", "c1",
			"time", "2024-05-01T12:00:00Z", "text", encrypt(t, d, "hi"), "file", "photo.jpg"),
		entry("1700000300000-0", "id", "2", "username", "alice", "chat", "c1",
			"time", "2024-05-01T12:05:00Z", "location", "-31.006,-64.263"),
	}
}

func TestProcessPairsDecryptsAndResolves(t *testing.T) {
	d := newDecryptor(t)
	src := &fakeSource{entries: map[string][]registrysource.Entry{"alice": scenario(t, d)}}
	media := &fakeMedia{urls: map[string]string{"photo.jpg": "http://api/v1/media?filename=k.jpg"}}
	sink := &recordingSink{}

	res, err := ingest.NewPipeline(src, d, media, sink).Process(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, ingest.Result{Entries: 2, Records: 2, Features: 1, Written: 1}, res)

	require.Len(t, sink.features, 1)
	f := sink.features[0]
	assert.Equal(t, "2", f.ID)
	assert.Equal(t, "1", f.Related)
	assert.Equal(t, orb.Point{-64.263, -31.006}, f.Geometry)
	require.NotNil(t, f.Message)
	assert.Equal(t, "hi", *f.Message)
	require.NotNil(t, f.File)
	assert.Equal(t, "http://api/v1/media?filename=k.jpg", *f.File)
	assert.Equal(t, []string{"alice/photo.jpg"}, media.calls)
}

func TestProcessKeepsFeatureWhenDecryptionFails(t *testing.T) {
	d := newDecryptor(t)
	entries := scenario(t, d)
	entries[0].Values["text"] = "bm90IGVuY3J5cHRlZA=="
	src := &fakeSource{entries: map[string][]registrysource.Entry{"alice": entries}}
	sink := &recordingSink{}

	_, err := ingest.NewPipeline(src, d, &fakeMedia{}, sink).Process(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, sink.features, 1)
	assert.Nil(t, sink.features[0].Message)
	assert.Nil(t, sink.features[0].File)
}

func TestProcessTreatsBrokenBatchAsEmpty(t *testing.T) {
	src := &fakeSource{entries: map[string][]registrysource.Entry{"alice": {
		entry("1700000300000-0", "username", "alice", "chat", "c1", "time", "2024-05-01T12:05:00Z"),
		entry("1700000000000-0", "username", "alice", "chat", "c1", "time", "2024-05-01T12:00:00Z"),
	}}}
	sink := &recordingSink{}

	res, err := ingest.NewPipeline(src, nil, nil, sink).Process(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)
	assert.Zero(t, res.Features)
	assert.Empty(t, sink.features)
}

func TestProcessWrapsFailures(t *testing.T) {
	readErr := errors.New("connection reset")
	_, err := ingest.NewPipeline(&fakeSource{err: readErr}, nil, nil, &recordingSink{}).
		Process(context.Background(), "alice")
	var use *ingest.UnknownSourceError
	require.ErrorAs(t, err, &use)
	assert.Equal(t, "read", use.Stage)
	assert.ErrorIs(t, err, readErr)

	d := newDecryptor(t)
	src := &fakeSource{entries: map[string][]registrysource.Entry{"alice": scenario(t, d)}}
	_, err = ingest.NewPipeline(src, d, nil, &recordingSink{err: errors.New("db down")}).
		Process(context.Background(), "alice")
	require.ErrorAs(t, err, &use)
	assert.Equal(t, "persist", use.Stage)
}

func TestProcessRecoversPanics(t *testing.T) {
	d := newDecryptor(t)
	src := &fakeSource{entries: map[string][]registrysource.Entry{"alice": scenario(t, d)}}

	_, err := ingest.NewPipeline(src, d, panickingMedia{}, &recordingSink{}).Process(context.Background(), "alice")
	var use *ingest.UnknownSourceError
	require.ErrorAs(t, err, &use)
	assert.Equal(t, "enrich", use.Stage)
	assert.Contains(t, err.Error(), "boom")
}

func TestUpsertSinkPreservesMessageAcrossCycles(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	store := sqlite.New(db)
	defer store.Close()

	d := newDecryptor(t)
	entries := scenario(t, d)
	src := &fakeSource{entries: map[string][]registrysource.Entry{"alice": entries}}
	p := ingest.NewPipeline(src, d, &fakeMedia{}, ingest.UpsertSink{Store: store})

	_, err = p.Process(context.Background(), "alice")
	require.NoError(t, err)

	// The next cycle cannot decrypt; the stored message must survive.
	entries[0].Values["text"] = "corrupted"
	res, err := p.Process(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	m, err := store.GetMapByOwner(context.Background(), "alice")
	require.NoError(t, err)
	_, points, err := store.ExportMap(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.NotNil(t, points[0].Message)
	assert.Equal(t, "hi", *points[0].Message)
	assert.True(t, points[0].Time.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}
