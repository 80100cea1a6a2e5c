// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solver fits a closed-form expression in one variable to sampled
// (parameter, iteration count) pairs.
//
// Solve first tries a fixed ladder of least-squares fits over small function
// bases, from the constant up to a cubic. The first basis whose fitted curve
// reproduces every sample within tolerance wins. When no basis fits, a seeded
// genetic-programming search over add, mul, log, sqrt and small integer
// constants runs for a bounded number of generations.
//
// Both stages are deterministic for a given Config, so the same samples
// always produce the same expression.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
)

// Var is the name of the free variable in every returned expression.
const Var = "X0"

var tracer = otel.Tracer("costpath.solver")

var (
	// ErrNoConvergence is returned when neither the basis fits nor the
	// genetic search reproduce the samples, or the context expired first.
	ErrNoConvergence = errors.New("solver did not converge")

	// ErrBadInput is returned for empty, mismatched or non-finite samples.
	ErrBadInput = errors.New("invalid solver input")
)

// Config tunes the search.
type Config struct {
	// Seed seeds the genetic search.
	Seed uint64 `yaml:"seed" json:"seed"`

	// Population is the number of programs per generation.
	Population int `yaml:"population" json:"population" validate:"gte=2"`

	// Generations bounds the genetic search.
	Generations int `yaml:"generations" json:"generations" validate:"gte=0"`

	// MaxDepth is the static height limit for evolved programs.
	MaxDepth int `yaml:"max_depth" json:"max_depth" validate:"gte=1,lte=17"`

	// Tolerance is the largest absolute error accepted at any sample,
	// scaled by max(1, |y|).
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gt=0"`

	// Timeout bounds a single Solve call. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Seed:        0,
		Population:  300,
		Generations: 40,
		MaxDepth:    6,
		Tolerance:   1e-6,
		Timeout:     30 * time.Second,
	}
}

// Solver fits expressions to samples.
//
// Thread Safety:
//
//	Solver is safe for concurrent use. Each Solve call owns its random
//	source.
type Solver struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Solver.
//
// Inputs:
//
//	cfg - Search settings. Unset Population, MaxDepth and Tolerance fall
//	      back to DefaultConfig values.
//	logger - Logger for search progress. If nil, uses slog.Default().
//
// Outputs:
//
//	*Solver - The configured solver.
func New(cfg Config, logger *slog.Logger) *Solver {
	def := DefaultConfig()
	if cfg.Population < 2 {
		cfg.Population = def.Population
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{cfg: cfg, logger: logger}
}

// Config returns the effective settings.
func (s *Solver) Config() Config { return s.cfg }

// Solve returns an expression in Var that reproduces ys at xs.
//
// Description:
//
//	Runs the basis ladder, then the genetic search. Every candidate is
//	re-evaluated through the algebra package before it is accepted, so the
//	returned expression is exactly what callers will evaluate.
//
// Inputs:
//
//	ctx - Bounds the search. Must not be nil.
//	xs - Parameter values.
//	ys - Observed values. Same length as xs.
//
// Outputs:
//
//	algebra.Expr - The simplified expression.
//	error - ErrBadInput for unusable samples, ErrNoConvergence otherwise.
func (s *Solver) Solve(ctx context.Context, xs, ys []float64) (algebra.Expr, error) {
	if err := checkSamples(xs, ys); err != nil {
		return algebra.Expr{}, err
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "solver.Solve",
		trace.WithAttributes(attribute.Int("samples", len(xs))),
	)
	defer span.End()

	for _, b := range ladder {
		if e, ok := fitBasis(b, xs, ys, s.cfg.Tolerance); ok {
			span.SetAttributes(attribute.String("strategy", "basis:"+b.name))
			s.logger.Debug("solver: basis fit accepted",
				slog.String("basis", b.name),
				slog.String("expr", e.String()),
			)
			return e, nil
		}
	}

	e, err := s.evolve(ctx, xs, ys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return algebra.Expr{}, err
	}
	span.SetAttributes(attribute.String("strategy", "genetic"))
	s.logger.Debug("solver: genetic search accepted", slog.String("expr", e.String()))
	return e, nil
}

func checkSamples(xs, ys []float64) error {
	if len(xs) == 0 {
		return fmt.Errorf("%w: no samples", ErrBadInput)
	}
	if len(xs) != len(ys) {
		return fmt.Errorf("%w: %d parameters for %d values", ErrBadInput, len(xs), len(ys))
	}
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			return fmt.Errorf("%w: sample %d is not finite", ErrBadInput, i)
		}
	}
	return nil
}

// reproduces reports whether e evaluates to every ys[i] at xs[i].
func reproduces(e algebra.Expr, xs, ys []float64, tol float64) bool {
	env := map[string]float64{}
	for i, x := range xs {
		env[Var] = x
		v, err := e.Eval(env)
		if err != nil || !finite(v) {
			return false
		}
		if math.Abs(v-ys[i]) > tol*math.Max(1, math.Abs(ys[i])) {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
