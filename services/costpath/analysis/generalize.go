// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/solver"
	"github.com/AleutianAI/costpath/services/costpath/trace"
)

// Solver fits an expression in solver.Var to (parameter, count) samples.
// *solver.Solver implements it.
type Solver interface {
	Solve(ctx context.Context, xs, ys []float64) (algebra.Expr, error)
}

// Loop count strategies, reported in logs and metrics.
const (
	StrategyConstant = "constant"
	StrategyLinear   = "linear"
	StrategySolver   = "solver"
)

// correlationTolerance absorbs float noise in the Pearson coefficient of
// exactly linear samples.
const correlationTolerance = 1e-12

// lineTolerance is the largest residual exactLine accepts at any sample.
const lineTolerance = 1e-9

// PathOutcome is the result of generalizing one path group.
type PathOutcome struct {
	// Expr is the representative expression of the path.
	Expr algebra.Expr

	// Variable reports whether any loop count was assigned.
	Variable bool

	// Loops lists the assigned loop counts, in representative post-order.
	Loops []LoopCount
}

// LoopCount records one loop's inferred count expression.
type LoopCount struct {
	LoopID   trace.ID
	Strategy string
	Expr     algebra.Expr
}

// Generalizer derives one expression per path group.
type Generalizer struct {
	solver     Solver
	paramIndex int
	logger     *slog.Logger
}

// NewGeneralizer creates a Generalizer.
//
// Inputs:
//
//	s - Fits non-linear loop counts. Must not be nil.
//	paramIndex - Which root argument is the size parameter X0.
//	logger - If nil, uses slog.Default().
func NewGeneralizer(s Solver, paramIndex int, logger *slog.Logger) *Generalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generalizer{solver: s, paramIndex: paramIndex, logger: logger}
}

// Generalize derives the representative expression of g.
//
// Description:
//
//	Loops are matched by representative post-order index across the group's
//	trees. Each loop whose count is not 0 in every tree gets a count
//	expression: the shared constant, an exact linear fit in X0 when the
//	samples are perfectly correlated, or the solver's fit. The expression is
//	set on the matching loop of every tree. When any loop was assigned, the
//	first tree's expression represents the path. Otherwise all trees must
//	synthesize the same expression.
//
// Inputs:
//
//	ctx - Bounds solver calls.
//	g - The path group.
//	known - Known expressions. May be nil.
//	r - Resolves links. May be nil.
//
// Outputs:
//
//	PathOutcome - The representative expression and assigned loop counts.
//	error - *UnresolvedLoopError or *UnresolvedPathError. Both are
//	        recoverable: the path is skipped.
func (gz *Generalizer) Generalize(ctx context.Context, g *PathGroup, known map[string]algebra.Expr, r trace.Resolver) (PathOutcome, error) {
	var out PathOutcome

	loops := make([][]*trace.Loop, len(g.Trees))
	for i, t := range g.Trees {
		loops[i] = trace.RepresentativeLoops(t.Root)
		for _, l := range loops[i] {
			l.ClearCountExpr()
		}
	}

	if len(loops[0]) > 0 {
		for i, l := range loops[1:] {
			if len(l) != len(loops[0]) {
				return out, &UnresolvedLoopError{
					Signature: g.Signature,
					PathID:    g.PathID,
					LoopID:    loops[0][0].ID(),
					Err:       fmt.Errorf("%w: %s has %d loops, %s has %d", ErrLoopMismatch, g.Trees[0].Name, len(loops[0]), g.Trees[i+1].Name, len(l)),
				}
			}
		}

		for pos, ref := range loops[0] {
			counts := make([]float64, len(loops))
			for j := range loops {
				counts[j] = float64(loops[j][pos].Count())
			}
			if allEqual(counts, 0) {
				continue
			}

			e, strategy, err := gz.countExpr(ctx, g, counts)
			if err != nil {
				return PathOutcome{}, &UnresolvedLoopError{
					Signature: g.Signature,
					PathID:    g.PathID,
					LoopID:    ref.ID(),
					Err:       err,
				}
			}
			for j := range loops {
				loops[j][pos].SetCountExpr(e)
			}
			out.Variable = true
			out.Loops = append(out.Loops, LoopCount{LoopID: ref.ID(), Strategy: strategy, Expr: e})
			gz.logger.Debug("analysis: loop count assigned",
				slog.String("signature", g.Signature),
				slog.Int("path_id", g.PathID),
				slog.String("loop_id", string(ref.ID())),
				slog.String("strategy", strategy),
				slog.String("expr", e.String()),
			)
		}

		if out.Variable {
			out.Expr, _ = ToExpr(g.Trees[0].Root, known, r)
			return out, nil
		}
	}

	var distinct []string
	for _, t := range g.Trees {
		e, _ := ToExpr(t.Root, known, r)
		if s := e.String(); !slices.Contains(distinct, s) {
			distinct = append(distinct, s)
		}
		if len(distinct) == 1 {
			out.Expr = e
		}
	}
	if len(distinct) > 1 {
		return PathOutcome{}, &UnresolvedPathError{Signature: g.Signature, PathID: g.PathID, Exprs: distinct}
	}
	return out, nil
}

// countExpr picks the cheapest strategy that explains counts.
func (gz *Generalizer) countExpr(ctx context.Context, g *PathGroup, counts []float64) (algebra.Expr, string, error) {
	if allEqual(counts, counts[0]) {
		return algebra.Num(counts[0]), StrategyConstant, nil
	}

	xs, err := gz.params(g)
	if err != nil {
		return algebra.Expr{}, "", err
	}
	if e, ok := exactLine(xs, counts); ok {
		return e, StrategyLinear, nil
	}

	e, err := gz.solver.Solve(ctx, xs, counts)
	if err != nil {
		return algebra.Expr{}, "", err
	}
	return e, StrategySolver, nil
}

// params returns each tree's size parameter.
func (gz *Generalizer) params(g *PathGroup) ([]float64, error) {
	xs := make([]float64, len(g.Trees))
	for i, t := range g.Trees {
		ps := t.Root.Params()
		if gz.paramIndex < 0 || gz.paramIndex >= len(ps) {
			return nil, fmt.Errorf("%w: %s has no argument %d", ErrParamNotNumeric, t.Name, gz.paramIndex)
		}
		v, err := strconv.ParseFloat(ps[gz.paramIndex].Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %q", ErrParamNotNumeric, t.Name, ps[gz.paramIndex].Value)
		}
		xs[i] = v
	}
	return xs, nil
}

// exactLine returns m*X0 + b when the samples are perfectly positively
// correlated. The slope comes from the first two points with distinct x and
// the line must reproduce every sample; near-linear samples are left to the
// solver.
func exactLine(xs, ys []float64) (algebra.Expr, bool) {
	if len(xs) < 2 {
		return algebra.Expr{}, false
	}
	corr := stat.Correlation(xs, ys, nil)
	if math.IsNaN(corr) || math.Abs(corr-1) > correlationTolerance {
		return algebra.Expr{}, false
	}
	for j := 1; j < len(xs); j++ {
		if xs[j] == xs[0] {
			continue
		}
		m := (ys[j] - ys[0]) / (xs[j] - xs[0])
		b := ys[0] - m*xs[0]
		for i := range xs {
			if math.Abs(m*xs[i]+b-ys[i]) > lineTolerance {
				return algebra.Expr{}, false
			}
		}
		return algebra.Add(algebra.Scale(algebra.Sym(solver.Var), m), algebra.Num(b)), true
	}
	return algebra.Expr{}, false
}

func allEqual(vs []float64, v float64) bool {
	for _, x := range vs {
		if x != v {
			return false
		}
	}
	return true
}
