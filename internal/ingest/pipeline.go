// Package ingest runs one owner's log through decode, correlation,
// decryption, media resolution and persistence.
package ingest

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/correlate"
	"github.com/chirino/chatmap-ingest/internal/decoder"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
)

// TextDecryptor decrypts message bodies.
type TextDecryptor interface {
	DecryptText(encoded string) (string, error)
}

// MediaResolver turns a media reference into a retrievable URL. A nil URL
// means the media is unavailable for now.
type MediaResolver interface {
	Resolve(ctx context.Context, reference, owner string) (*string, error)
}

// Result summarises one owner's pass.
type Result struct {
	Entries  int
	Records  int
	Features int
	Written  int
}

// Pipeline processes one owner's log per call. It holds no per-cycle state.
type Pipeline struct {
	source    registrysource.Source
	decryptor TextDecryptor
	media     MediaResolver
	sink      Sink
}

// NewPipeline wires a pipeline. decryptor and media may be nil, in which
// case messages and files are passed through as read.
func NewPipeline(source registrysource.Source, decryptor TextDecryptor, media MediaResolver, sink Sink) *Pipeline {
	return &Pipeline{source: source, decryptor: decryptor, media: media, sink: sink}
}

// Process reads, correlates and persists owner's log. Every failure,
// including a panic, is returned as *UnknownSourceError.
func (p *Pipeline) Process(ctx context.Context, owner string) (res Result, err error) {
	stage := "read"
	defer func() {
		if r := recover(); r != nil {
			err = &UnknownSourceError{Owner: owner, Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	entries, err := p.source.Read(ctx, owner)
	if err != nil {
		return res, &UnknownSourceError{Owner: owner, Stage: stage, Err: err}
	}
	res.Entries = len(entries)

	stage = "decode"
	records, err := decoder.Decode(entries)
	if err != nil {
		if decoder.IsBatchError(err) {
			log.Warn("Discarding malformed batch", "owner", owner, "entries", len(entries), "err", err)
			telemetry.RecordDecodeDrops(len(entries))
			return res, nil
		}
		telemetry.RecordDecodeDrops(len(entries) - len(records))
	}
	res.Records = len(records)

	stage = "correlate"
	features := correlate.Correlate(records)
	res.Features = len(features)
	telemetry.RecordFeatures(len(features))

	stage = "enrich"
	for i := range features {
		p.enrich(ctx, owner, &features[i])
	}

	stage = "persist"
	written, err := p.sink.Write(ctx, owner, features)
	if err != nil {
		return res, &UnknownSourceError{Owner: owner, Stage: stage, Err: err}
	}
	res.Written = written
	telemetry.RecordPoints(written)
	return res, nil
}

func (p *Pipeline) enrich(ctx context.Context, owner string, f *model.Feature) {
	if f.Message != nil && p.decryptor != nil {
		text, err := p.decryptor.DecryptText(*f.Message)
		if err != nil {
			log.Warn("Dropping undecryptable message", "owner", owner, "id", f.ID, "related", f.Related, "err", err)
			telemetry.RecordDecryptFailure()
			f.Message = nil
		} else {
			f.Message = &text
		}
	}
	if f.File != nil && p.media != nil {
		url, err := p.media.Resolve(ctx, *f.File, owner)
		if err != nil {
			log.Warn("Media unavailable", "owner", owner, "id", f.ID, "reference", *f.File, "err", err)
		}
		f.File = url
	}
}
