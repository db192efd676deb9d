package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chirino/chatmap-ingest/internal/ingest"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	owners  []string
	listErr error
	trimmed map[string]time.Time
}

func (s *fakeSource) List(context.Context) ([]string, error) {
	return s.owners, s.listErr
}

func (s *fakeSource) Read(context.Context, string) ([]registrysource.Entry, error) {
	return nil, nil
}

func (s *fakeSource) Trim(_ context.Context, owner string, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trimmed == nil {
		s.trimmed = map[string]time.Time{}
	}
	s.trimmed[owner] = olderThan
	return 3, nil
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (p *fakeProcessor) Process(_ context.Context, owner string) (ingest.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, owner)
	p.mu.Unlock()
	if err := p.fail[owner]; err != nil {
		return ingest.Result{}, err
	}
	return ingest.Result{Features: 2, Written: 2}, nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestRunOnceContinuesAfterFailingSource(t *testing.T) {
	src := &fakeSource{owners: []string{"alice", "bob", "carol"}}
	proc := &fakeProcessor{fail: map[string]error{
		"bob": &ingest.UnknownSourceError{Owner: "bob", Stage: "persist", Err: errors.New("db down")},
	}}
	p := NewPoller(src, proc, nil, time.Minute)

	res := p.RunOnce(context.Background())
	assert.Equal(t, []string{"alice", "bob", "carol"}, proc.calls)
	assert.Equal(t, CycleResult{Owners: 3, Failed: 1, Features: 4, Written: 4}, res)
	assert.False(t, p.LastCycle().IsZero())
}

func TestRunOnceTrimsSucceededSources(t *testing.T) {
	src := &fakeSource{owners: []string{"alice", "bob"}}
	proc := &fakeProcessor{fail: map[string]error{"bob": errors.New("boom")}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	trimmer := NewStreamTrimmer(src, 30*time.Minute)
	trimmer.now = func() time.Time { return now }

	NewPoller(src, proc, trimmer, time.Minute).RunOnce(context.Background())
	require.Len(t, src.trimmed, 1)
	assert.Equal(t, now.Add(-30*time.Minute), src.trimmed["alice"])
}

func TestRunOnceListFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("redis down")}
	proc := &fakeProcessor{}
	res := NewPoller(src, proc, nil, time.Minute).RunOnce(context.Background())
	assert.Zero(t, res.Owners)
	assert.Empty(t, proc.calls)
}

func TestStartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	src := &fakeSource{owners: []string{"alice"}}
	proc := &fakeProcessor{}
	p := NewPoller(src, proc, nil, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return proc.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestTrimmerDisabled(t *testing.T) {
	src := &fakeSource{}
	NewStreamTrimmer(src, 0).Trim(context.Background(), "alice")
	var nilTrimmer *StreamTrimmer
	nilTrimmer.Trim(context.Background(), "alice")
	assert.Empty(t, src.trimmed)
}
