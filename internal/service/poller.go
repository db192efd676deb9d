package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/ingest"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
)

// Processor runs one owner's log through the ingestion pipeline.
type Processor interface {
	Process(ctx context.Context, owner string) (ingest.Result, error)
}

// CycleResult summarises one polling cycle.
type CycleResult struct {
	Owners   int
	Failed   int
	Features int
	Written  int
}

// Poller runs the ingestion cycle on a fixed interval. Owners are processed
// one after another; a failing owner is logged and skipped.
type Poller struct {
	source    registrysource.Source
	processor Processor
	trimmer   *StreamTrimmer
	interval  time.Duration

	lastCycle atomic.Int64
}

// NewPoller creates a poller. trimmer may be nil to keep logs untouched.
func NewPoller(source registrysource.Source, processor Processor, trimmer *StreamTrimmer, interval time.Duration) *Poller {
	return &Poller{
		source:    source,
		processor: processor,
		trimmer:   trimmer,
		interval:  interval,
	}
}

// Start runs one cycle immediately and then one per interval. Returns when
// ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.interval = 10 * time.Second
	}
	log.Info("Poller started", "interval", p.interval)
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Poller stopped")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce processes every owner currently present in the source.
func (p *Poller) RunOnce(ctx context.Context) CycleResult {
	start := time.Now()
	defer func() {
		telemetry.RecordCycle(time.Since(start))
		p.lastCycle.Store(time.Now().UnixNano())
	}()

	var res CycleResult
	owners, err := p.source.List(ctx)
	if err != nil {
		log.Error("Listing sources failed", "err", err)
		telemetry.RecordSourceFailure("list")
		return res
	}
	res.Owners = len(owners)

	for _, owner := range owners {
		if ctx.Err() != nil {
			return res
		}
		out, err := p.processor.Process(ctx, owner)
		if err != nil {
			res.Failed++
			stage := "unknown"
			var use *ingest.UnknownSourceError
			if errors.As(err, &use) {
				stage = use.Stage
			}
			log.Error("Source cycle failed", "owner", owner, "stage", stage, "err", err)
			telemetry.RecordSourceFailure(stage)
			continue
		}
		res.Features += out.Features
		res.Written += out.Written
		p.trimmer.Trim(ctx, owner)
	}

	log.Debug("Cycle complete", "owners", res.Owners, "failed", res.Failed,
		"features", res.Features, "written", res.Written, "took", time.Since(start))
	return res
}

// LastCycle returns when the most recent cycle finished, or the zero time
// before the first one completes.
func (p *Poller) LastCycle() time.Time {
	ns := p.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
