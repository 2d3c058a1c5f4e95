package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fanout/pkg/models"
)

// State tracks the orchestrator through one run.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateTransforming
	StateLoading
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunSummary aggregates one run for operators: counts per stage, the
// dataset fingerprint and the per-sink outcomes.
type RunSummary struct {
	RunID       string                   `json:"runId"`
	Pipeline    string                   `json:"pipeline"`
	StartedAt   time.Time                `json:"startedAt"`
	Duration    time.Duration            `json:"duration"`
	Extracted   int                      `json:"extracted"`
	Dropped     []*SchemaValidationError `json:"dropped,omitempty"`
	Rows        int                      `json:"rows"`
	Fingerprint string                   `json:"fingerprint"`
	DryRun      bool                     `json:"dryRun,omitempty"`
	Results     []LoadResult             `json:"results,omitempty"`
}

// SinksFailed counts the sinks that reported a failure.
func (s *RunSummary) SinksFailed() int {
	n := 0
	for _, r := range s.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// AllSinksFailed reports whether every attempted sink failed. A run
// that attempted no sinks did not fail.
func (s *RunSummary) AllSinksFailed() bool {
	return len(s.Results) > 0 && s.SinksFailed() == len(s.Results)
}

// Orchestrator sequences one run: extract, transform, then fan the
// dataset out to every sink concurrently. Sink failures are isolated
// from each other; only extraction and transformation failures abort
// the run.
type Orchestrator struct {
	pipeline    string
	source      models.Source
	extractor   *Extractor
	transformer *Transformer
	sinks       []Sink
	dryRun      bool
	log         *slog.Logger

	state State
}

func NewOrchestrator(p *models.Pipeline, extractor *Extractor, transformer *Transformer, sinks []Sink, dryRun bool, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		pipeline:    p.Name,
		source:      p.Source,
		extractor:   extractor,
		transformer: transformer,
		sinks:       sinks,
		dryRun:      dryRun,
		log:         log,
		state:       StateIdle,
	}
}

// State returns the stage the orchestrator last entered.
func (o *Orchestrator) State() State { return o.state }

// Run executes the pipeline once. The summary is returned whenever the
// run got far enough to have one. The error is non-nil when the run must
// count as failed: a fatal extract or transform error, or every sink
// failing (ErrAllSinksFailed). Partial sink failure is success.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Pipeline:  o.pipeline,
		StartedAt: start.UTC(),
		DryRun:    o.dryRun,
	}
	o.log.Info("run starting", "pipeline", o.pipeline, "runId", summary.RunID, "dryRun", o.dryRun)

	o.setState(StateExtracting)
	stream, err := o.extractor.Extract(ctx, o.source)
	if err != nil {
		o.setState(StateFailed)
		return nil, err
	}

	o.setState(StateTransforming)
	ds, dropped, err := o.transformer.Transform(stream)
	if err != nil {
		o.setState(StateFailed)
		return nil, err
	}
	summary.Extracted = ds.Len() + len(dropped)
	summary.Dropped = dropped
	summary.Rows = ds.Len()
	summary.Fingerprint = ds.Fingerprint()

	switch {
	case o.dryRun:
		o.log.Info("dry run, skipping sinks", "rows", ds.Len())
	case ds.Len() == 0:
		o.log.Info("empty dataset, nothing to load")
	default:
		o.setState(StateLoading)
		summary.Results = o.loadAll(ctx, ds)
	}

	o.setState(StateDone)
	summary.Duration = time.Since(start)
	o.log.Info("run finished",
		"runId", summary.RunID,
		"rows", summary.Rows,
		"sinksFailed", summary.SinksFailed(),
		"duration", summary.Duration)

	if summary.AllSinksFailed() {
		return summary, ErrAllSinksFailed
	}
	return summary, nil
}

// loadAll fans the dataset out to every sink at once. Each goroutine
// writes only its own result slot and always returns nil, so one failed
// sink never cancels its siblings.
func (o *Orchestrator) loadAll(ctx context.Context, ds *Dataset) []LoadResult {
	results := make([]LoadResult, len(o.sinks))

	g, gctx := errgroup.WithContext(ctx)
	for i, sink := range o.sinks {
		i, sink := i, sink
		g.Go(func() error {
			started := time.Now()
			res, err := sink.Load(gctx, ds)
			res.Sink = sink.Name()
			res.Duration = time.Since(started)
			if err != nil {
				res.Error = err.Error()
				o.log.Error("sink failed", "sink", sink.Name(), "error", err)
			} else {
				o.log.Info("sink loaded", "sink", sink.Name(), "rows", res.RowsWritten)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	return results
}

func (o *Orchestrator) setState(s State) {
	o.state = s
	o.log.Debug("state transition", "state", s.String())
}
