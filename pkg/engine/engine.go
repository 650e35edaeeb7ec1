// Package engine wires alignment, signal resolution, rule lookup,
// detection and aggregation into the per-run evaluation pipeline.
//
// A run is evaluated in one strictly ordered sequential pass. Reference
// data (sections, rule table, signal locations) is read-only and shared;
// all per-run state is created inside EvaluateRun, so runs may be
// evaluated concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/aggregate"
	"github.com/railtrace/railtrace/pkg/align"
	"github.com/railtrace/railtrace/pkg/detect"
	"github.com/railtrace/railtrace/pkg/diag"
	"github.com/railtrace/railtrace/pkg/rules"
	"github.com/railtrace/railtrace/pkg/signalstate"
	"github.com/railtrace/railtrace/pkg/stops"
)

// ErrEmptyRun marks a run with no telemetry samples. It halts that run
// only; other runs in a batch continue.
var ErrEmptyRun = errors.New("run has no telemetry samples")

// Config holds the per-engine tunables.
type Config struct {
	Detect    detect.Config
	Aggregate aggregate.Config
	Stops     stops.Config

	// MaxConcurrentRuns bounds EvaluateBatch parallelism. 0 = GOMAXPROCS.
	MaxConcurrentRuns int
}

// Result is the full evaluation output for one run.
type Result struct {
	RunID     uuid.UUID
	TrainType model.TrainType

	Violations  []model.Violation
	Stops       []stops.Event
	Annotated   []model.AnnotatedSample
	Diagnostics []diag.Record
	Summary     model.Summary

	Elapsed time.Duration
}

// Engine evaluates runs against one set of reference data.
type Engine struct {
	aligner  *align.Aligner
	resolver *signalstate.Resolver
	table    *rules.Table
	signals  []stops.SignalLocation
	cfg      Config
}

// New validates the reference data and builds an engine.
func New(sections []model.Section, table *rules.Table, signals []stops.SignalLocation, cfg Config) (*Engine, error) {
	resolver, err := signalstate.NewResolver(sections)
	if err != nil {
		return nil, fmt.Errorf("invalid section data: %w", err)
	}
	return &Engine{
		aligner:  align.New(sections),
		resolver: resolver,
		table:    table,
		signals:  signals,
		cfg:      cfg,
	}, nil
}

// EvaluateRun runs the full pipeline for one run: align, annotate,
// detect, aggregate, detect stops. All outputs are returned
// synchronously; cancellation is the caller's context.
func (e *Engine) EvaluateRun(ctx context.Context, run *model.Run) (*Result, error) {
	tracer := otel.Tracer("railtrace/engine")
	ctx, span := tracer.Start(ctx, "engine.EvaluateRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.String("run.train_type", run.TrainType.String()),
		attribute.Int("run.samples", len(run.Samples)),
	)

	start := time.Now()

	if len(run.Samples) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrEmptyRun, run.ID)
	}

	collector := diag.NewCollector()

	// UNKNOWN_TRAIN_TYPE is a run-level condition: record it once, then
	// leave the affected samples without a ceiling so overspeed
	// detection skips them.
	table := e.table.WithDefault(run.TrainType, run.MaxPermissibleSpeed)
	if run.TrainType == model.TrainTypeUnknown {
		collector.Recordf(diag.CodeUnknownTrainType, -1, "", time.Time{},
			"run %s has no valid train type", run.ID)
	}

	aligned := e.aligner.Align(run, collector)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	annotated := e.annotate(run, aligned, table, collector)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := detect.Detect(annotated, e.cfg.Detect)
	violations, summary := aggregate.Aggregate(raw, e.cfg.Aggregate)
	stopEvents := stops.Detect(run.Samples, e.signals, e.cfg.Stops)

	span.SetAttributes(
		attribute.Int("run.violations", len(violations)),
		attribute.Int("run.diagnostics", int(collector.Total())),
	)

	return &Result{
		RunID:       run.ID,
		TrainType:   run.TrainType,
		Violations:  violations,
		Stops:       stopEvents,
		Annotated:   annotated,
		Diagnostics: collector.Records(),
		Summary:     summary,
		Elapsed:     time.Since(start),
	}, nil
}

// annotate resolves the signal aspect and speed ceiling per aligned sample.
func (e *Engine) annotate(run *model.Run, aligned []align.Aligned, table *rules.Table, c *diag.Collector) []model.AnnotatedSample {
	out := make([]model.AnnotatedSample, 0, len(aligned))
	for _, al := range aligned {
		a := model.AnnotatedSample{
			TelemetrySample: al.Sample,
			Index:           al.Index,
			SectionID:       al.SectionID,
			Aspect:          e.resolver.AspectAt(al.SectionID, al.Sample.Timestamp),
		}

		var attr string
		if sec, ok := e.resolver.Section(al.SectionID); ok {
			attr = sec.Attribute
		}

		rule, err := table.Lookup(run.TrainType, a.Aspect, attr)
		switch {
		case err == nil:
			a.Ceiling = rule.Ceiling
			a.HasCeiling = true
		case errors.Is(err, rules.ErrRuleNotFound):
			c.Recordf(diag.CodeRuleNotFound, al.Index, al.SectionID, al.Sample.Timestamp,
				"train type %s, aspect %s", run.TrainType, a.Aspect)
		default:
			// Unknown train type was already recorded at run level.
		}

		out = append(out, a)
	}
	return out
}

// BatchItem pairs a run with its evaluation outcome.
type BatchItem struct {
	Run    *model.Run
	Result *Result
	Err    error
}

// EvaluateBatch evaluates independent runs concurrently. A run's
// data-level failure (e.g. EMPTY_RUN) is recorded on its item and does
// not abort the batch; only context cancellation stops early.
func (e *Engine) EvaluateBatch(ctx context.Context, runs []*model.Run) ([]BatchItem, error) {
	items := make([]BatchItem, len(runs))

	limit := e.cfg.MaxConcurrentRuns
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, run := range runs {
		items[i].Run = run
		g.Go(func() error {
			res, err := e.EvaluateRun(ctx, run)
			items[i].Result = res
			items[i].Err = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return items, err
	}
	return items, nil
}
