// Package engine orchestrates one analysis run: collect a snapshot, check
// the content-hash cache, build the prompt, call inference, process the
// raw output and store the results.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/p-blackswan/opsengine/internal/collector"
	"github.com/p-blackswan/opsengine/internal/goals"
	"github.com/p-blackswan/opsengine/internal/inference"
	"github.com/p-blackswan/opsengine/internal/metrics"
	"github.com/p-blackswan/opsengine/internal/models"
	"github.com/p-blackswan/opsengine/internal/processor"
	"github.com/p-blackswan/opsengine/internal/prompt"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

// Notifier receives the outcome of an analysis that produced new items.
// Failures are logged, never propagated.
type Notifier interface {
	NotifyAnalysis(ctx context.Context, batch suggest.Batch) error
}

// Options configures an engine.
type Options struct {
	Weights          goals.Weights
	InferenceTimeout time.Duration
	DedupeWindow     time.Duration
	Notifier         Notifier // optional
	Metrics          *metrics.Metrics
}

// AnalyzeRequest parameterizes one analysis run.
type AnalyzeRequest struct {
	HorizonDays int            `json:"horizon_days"`
	TeamIDs     []string       `json:"team_ids,omitempty"`
	Weights     *goals.Weights `json:"weights,omitempty"` // overrides the engine default
}

// AnalyzeResult is the outcome of one analysis run.
type AnalyzeResult struct {
	SnapshotHash string             `json:"snapshot_hash"`
	FromCache    bool               `json:"from_cache"`
	Batch        suggest.Batch      `json:"batch"`
	Snapshot     *collector.Context `json:"snapshot,omitempty"`
}

// Engine wires the pipeline together.
type Engine struct {
	collector *collector.Collector
	builder   *prompt.Builder
	svc       inference.Service
	proc      *processor.Processor
	store     *suggest.Store
	dir       models.Directory
	opts      Options
	flight    singleflight.Group
	logger    zerolog.Logger
}

// New creates an engine. svc may block for meaningful latency; every call
// is bounded by Options.InferenceTimeout.
func New(
	col *collector.Collector,
	builder *prompt.Builder,
	svc inference.Service,
	proc *processor.Processor,
	store *suggest.Store,
	dir models.Directory,
	opts Options,
	logger zerolog.Logger,
) *Engine {
	if opts.InferenceTimeout <= 0 {
		opts.InferenceTimeout = 60 * time.Second
	}
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = 24 * time.Hour
	}
	return &Engine{
		collector: col,
		builder:   builder,
		svc:       svc,
		proc:      proc,
		store:     store,
		dir:       dir,
		opts:      opts,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Analyze runs the pipeline. The snapshot cache is consulted before any
// inference call, and concurrent callers holding the same snapshot hash
// share a single in-flight run.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	start := time.Now()
	snap, err := e.collector.Collect(ctx, collector.Request{
		HorizonDays: req.HorizonDays,
		TeamIDs:     req.TeamIDs,
	})
	if err != nil {
		e.record(func(m *metrics.Metrics) { m.RecordCollection("error", time.Since(start).Seconds()) })
		return nil, fmt.Errorf("collecting context: %w", err)
	}
	e.record(func(m *metrics.Metrics) { m.RecordCollection("ok", time.Since(start).Seconds()) })

	hash, err := suggest.HashSnapshot(snap)
	if err != nil {
		return nil, err
	}

	if e.store.IsSnapshotValid(hash) {
		if batch, ok := e.store.CachedBatch(hash); ok {
			e.record(func(m *metrics.Metrics) { m.RecordCacheLookup("hit") })
			e.logger.Debug().Str("snapshot_hash", hash).Msg("returning cached analysis")
			return &AnalyzeResult{SnapshotHash: hash, FromCache: true, Batch: batch, Snapshot: snap}, nil
		}
	}
	e.record(func(m *metrics.Metrics) { m.RecordCacheLookup("miss") })

	v, err, shared := e.flight.Do(hash, func() (any, error) {
		// Another caller may have completed while this one queued.
		if batch, ok := e.store.CachedBatch(hash); ok && e.store.IsSnapshotValid(hash) {
			return batch, nil
		}
		return e.runInference(ctx, snap, hash, req.Weights)
	})
	if err != nil {
		return nil, err
	}

	batch := v.(suggest.Batch)
	if shared {
		e.logger.Debug().Str("snapshot_hash", hash).Msg("analysis shared with concurrent caller")
	}
	return &AnalyzeResult{SnapshotHash: hash, FromCache: shared, Batch: batch, Snapshot: snap}, nil
}

func (e *Engine) runInference(ctx context.Context, snap *collector.Context, hash string, override *goals.Weights) (suggest.Batch, error) {
	weights := e.opts.Weights
	if override != nil {
		weights = *override
	}

	users, err := e.dir.ListUsers(ctx)
	if err != nil {
		return suggest.Batch{}, fmt.Errorf("listing users: %w", err)
	}
	teams, err := e.dir.ListTeams(ctx)
	if err != nil {
		return suggest.Batch{}, fmt.Errorf("listing teams: %w", err)
	}

	p, err := e.builder.Build(prompt.Input{
		Snapshot: snap,
		Weights:  weights,
		Users:    users,
		Teams:    teams,
	})
	if err != nil {
		return suggest.Batch{}, fmt.Errorf("building prompt: %w", err)
	}

	inferCtx, cancel := context.WithTimeout(ctx, e.opts.InferenceTimeout)
	defer cancel()

	inferStart := time.Now()
	raw, err := e.svc.Analyze(inferCtx, p)
	if err != nil {
		e.record(func(m *metrics.Metrics) { m.RecordInference("error", time.Since(inferStart).Seconds()) })
		return suggest.Batch{}, fmt.Errorf("inference: %w", err)
	}
	e.record(func(m *metrics.Metrics) { m.RecordInference("ok", time.Since(inferStart).Seconds()) })

	prior := e.store.RecentSuggestions(e.opts.DedupeWindow)
	result, err := e.proc.Process(ctx, raw, prior)
	if err != nil {
		return suggest.Batch{}, fmt.Errorf("processing inference output: %w", err)
	}

	stored := e.store.StoreResults(hash, suggest.Batch{
		Suggestions:   result.Suggestions,
		Optimizations: result.Optimizations,
	})

	e.recordOutcomes(result, stored)

	if e.opts.Notifier != nil && (len(stored.Suggestions) > 0 || len(stored.Optimizations) > 0) {
		if err := e.opts.Notifier.NotifyAnalysis(ctx, stored); err != nil {
			e.logger.Warn().Err(err).Msg("analysis notification failed")
		}
	}

	return stored, nil
}

func (e *Engine) recordOutcomes(result *processor.Result, stored suggest.Batch) {
	e.record(func(m *metrics.Metrics) {
		for _, sg := range stored.Suggestions {
			if len(sg.ValidationErrors) > 0 {
				m.RecordSuggestion("flagged")
			} else {
				m.RecordSuggestion("stored")
			}
		}
		for i := 0; i < result.DroppedDuplicates; i++ {
			m.RecordSuggestion("duplicate")
		}
		for _, opt := range stored.Optimizations {
			switch {
			case opt.Status == suggest.OptAutoApplied:
				m.RecordOptimization("auto_applied")
			case len(opt.ValidationErrors) > 0:
				m.RecordOptimization("flagged")
			default:
				m.RecordOptimization("pending")
			}
		}
		m.SetPendingSuggestions(float64(len(e.store.PendingSuggestions())))
	})
}

func (e *Engine) record(fn func(*metrics.Metrics)) {
	if e.opts.Metrics != nil {
		fn(e.opts.Metrics)
	}
}
