package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
)

// StreamTrimmer deletes log entries older than the retention window. Trimming
// only bounds log growth; every pass rereads the whole log, so a skipped trim
// changes nothing downstream.
type StreamTrimmer struct {
	source    registrysource.Source
	retention time.Duration
	now       func() time.Time
}

// NewStreamTrimmer creates a trimmer. A non-positive retention disables it.
func NewStreamTrimmer(source registrysource.Source, retention time.Duration) *StreamTrimmer {
	return &StreamTrimmer{
		source:    source,
		retention: retention,
		now:       time.Now,
	}
}

// Trim removes owner's entries older than now minus retention.
func (t *StreamTrimmer) Trim(ctx context.Context, owner string) {
	if t == nil || t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	n, err := t.source.Trim(ctx, owner, cutoff)
	if err != nil {
		log.Warn("Stream trim failed", "owner", owner, "err", err)
		telemetry.RecordSourceFailure("trim")
		return
	}
	if n > 0 {
		log.Debug("Trimmed stream", "owner", owner, "removed", n, "olderThan", cutoff.UTC().Format(time.RFC3339))
		telemetry.RecordTrimmed(n)
	}
}
