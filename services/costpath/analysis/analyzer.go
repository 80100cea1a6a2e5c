// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis turns a forest of trace trees into per-path cost
// expressions.
//
// A run links recursive calls back to their traced roots, groups each
// signature's trees into paths by control-flow fingerprint, infers loop
// counts as functions of the size parameter X0 and synthesizes one
// symbolic expression per path.
//
// The pipeline is single-threaded. Known expressions and the call-key index
// are passed explicitly; nothing is held in package state.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/solver"
	"github.com/AleutianAI/costpath/services/costpath/telemetry"
	costtrace "github.com/AleutianAI/costpath/services/costpath/trace"
)

var (
	tracer = otel.Tracer("costpath.analysis")
	meter  = otel.Meter("costpath.analysis")
)

// ErrNilContext is returned by Run when ctx is nil.
var ErrNilContext = errors.New("context must not be nil")

// Options configures an Analyzer.
type Options struct {
	// ParamIndex selects the root argument used as X0.
	ParamIndex int

	// Solver fits non-linear loop counts. If nil, a solver with
	// solver.DefaultConfig is used.
	Solver Solver

	// Logger receives stage logs. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Analyzer runs the cost-path pipeline.
//
// Thread Safety:
//
//	An Analyzer may be shared, but Run mutates the trees it is given, so a
//	forest must not be analyzed by two runs at once.
type Analyzer struct {
	gen    *Generalizer
	logger *slog.Logger

	metricsOnce  sync.Once
	runs         metric.Int64Counter
	treesSeen    metric.Int64Counter
	pathOutcomes metric.Int64Counter
	loopCounts   metric.Int64Counter
	runLatency   metric.Float64Histogram
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := opts.Solver
	if s == nil {
		s = solver.New(solver.DefaultConfig(), logger)
	}
	return &Analyzer{
		gen:    NewGeneralizer(s, opts.ParamIndex, logger),
		logger: logger,
	}
}

func (a *Analyzer) initMetrics() {
	a.metricsOnce.Do(func() {
		var errs []error
		var err error

		a.runs, err = meter.Int64Counter("costpath_runs_total",
			metric.WithDescription("Analysis runs, by status"),
		)
		errs = append(errs, err)

		a.treesSeen, err = meter.Int64Counter("costpath_trees_total",
			metric.WithDescription("Trace trees analyzed"),
		)
		errs = append(errs, err)

		a.pathOutcomes, err = meter.Int64Counter("costpath_paths_total",
			metric.WithDescription("Path groups, by outcome"),
		)
		errs = append(errs, err)

		a.loopCounts, err = meter.Int64Counter("costpath_loop_counts_total",
			metric.WithDescription("Loop count expressions assigned, by strategy"),
		)
		errs = append(errs, err)

		a.runLatency, err = meter.Float64Histogram("costpath_run_duration_seconds",
			metric.WithDescription("Analysis run duration"),
			metric.WithUnit("s"),
		)
		errs = append(errs, err)

		if err := errors.Join(errs...); err != nil {
			a.logger.Error("failed to initialize some analysis metrics (observability degraded)",
				slog.String("error", err.Error()),
			)
		}
	})
}

// Run analyzes trees.
//
// Description:
//
//	Indexes and links the forest, partitions it into paths and generalizes
//	every path. Unresolved loops and paths are recorded as failures and the
//	run continues. Inconsistent recursion and context cancellation abort
//	the run.
//
// Inputs:
//
//	ctx - Cancels the run between paths and bounds solver calls.
//	trees - The forest. Trees are linked in place.
//	known - Known expressions by description or signature. May be nil.
//
// Outputs:
//
//	*Result - Expressions and contexts of every resolved path.
//	error - *InconsistentRecursionError or the context's error.
func (a *Analyzer) Run(ctx context.Context, trees []*costtrace.Tree, known map[string]algebra.Expr) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	a.initMetrics()

	start := time.Now()
	result := newResult(uuid.NewString())

	ctx, span := tracer.Start(ctx, "analysis.Run",
		trace.WithAttributes(
			attribute.String("run_id", result.RunID),
			attribute.Int("trees", len(trees)),
		),
	)
	defer span.End()

	logger := telemetry.LoggerWithTrace(ctx, a.logger).With(slog.String("run_id", result.RunID))
	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		logger.Error("analysis failed", slog.String("error", err.Error()))
		return nil, err
	}

	forest, err := NewForest(trees)
	if err != nil {
		return fail(err)
	}
	result.Summary.Trees = len(trees)
	a.treesSeen.Add(ctx, int64(len(trees)))
	logger.Info("trees loaded", slog.Int("trees", len(trees)))

	result.Summary.Links = forest.Link()
	logger.Info("trees linked", slog.Int("links", result.Summary.Links))

	paths := Partition(trees, forest)
	result.Summary.Signatures = len(paths.Signatures())
	result.Summary.Paths = paths.Len()
	for _, sig := range paths.Signatures() {
		groups := paths.Groups(sig)
		logger.Info("path summary", slog.String("signature", sig), slog.Int("paths", len(groups)))
		for _, g := range groups {
			logger.Debug("path",
				slog.String("signature", sig),
				slog.Int("path_id", g.PathID),
				slog.Any("fingerprint", g.Fingerprint),
				slog.Int("trees", len(g.Trees)),
			)
		}
	}

	for _, g := range paths.All() {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		info := a.generalize(ctx, logger, result, g, known, forest)
		result.Paths = append(result.Paths, info)
	}

	result.Summary.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("paths", result.Summary.Paths),
		attribute.Int("resolved", result.Summary.Resolved),
		attribute.Int("failed", result.Summary.Failed),
	)
	a.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	a.runLatency.Record(ctx, result.Summary.Duration.Seconds())
	logger.Info("analysis complete",
		slog.Int("paths", result.Summary.Paths),
		slog.Int("resolved", result.Summary.Resolved),
		slog.Int("failed", result.Summary.Failed),
		slog.Duration("duration", result.Summary.Duration),
	)
	return result, nil
}

func (a *Analyzer) generalize(ctx context.Context, logger *slog.Logger, result *Result, g *PathGroup, known map[string]algebra.Expr, r costtrace.Resolver) PathInfo {
	ctx, span := tracer.Start(ctx, "analysis.Generalize",
		trace.WithAttributes(
			attribute.String("signature", g.Signature),
			attribute.Int("path_id", g.PathID),
			attribute.Int("trees", len(g.Trees)),
		),
	)
	defer span.End()

	info := g.Info()
	if info.Irregular {
		logger.Warn("irregular loop: iterations approximated by main and trailing blocks",
			slog.String("signature", g.Signature),
			slog.Int("path_id", g.PathID),
		)
	}

	out, err := a.gen.Generalize(ctx, g, known, r)
	for _, lc := range out.Loops {
		a.loopCounts.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", lc.Strategy)))
	}
	if err != nil {
		kind := KindUnresolvedPath
		if errors.Is(err, ErrUnresolvedLoop) {
			kind = KindUnresolvedLoop
		}
		result.fail(g, kind, err)
		span.RecordError(err)
		a.pathOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", kind)))
		logger.Warn("path skipped",
			slog.String("signature", g.Signature),
			slog.Int("path_id", g.PathID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return info
	}

	info.Resolved = true
	expr := out.Expr.String()
	result.resolve(g, expr)
	a.pathOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "resolved")))
	logger.Info("path resolved",
		slog.String("signature", g.Signature),
		slog.Int("path_id", g.PathID),
		slog.Bool("variable", out.Variable),
		slog.String("expr", expr),
	)
	return info
}
