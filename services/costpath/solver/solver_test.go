// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
)

func evalAt(t *testing.T, e algebra.Expr, v float64) float64 {
	t.Helper()
	out, err := e.Eval(map[string]float64{Var: v})
	require.NoError(t, err)
	return out
}

func TestSolve_BasisLadder(t *testing.T) {
	s := New(DefaultConfig(), nil)

	tests := []struct {
		name string
		xs   []float64
		ys   []float64
		want string
	}{
		{"constant", []float64{1, 2, 3}, []float64{4, 4, 4}, "4"},
		{"decreasing line", []float64{1, 2, 3}, []float64{6, 4, 2}, "-2*X0 + 8"},
		{"squares", []float64{1, 2, 3}, []float64{1, 4, 9}, "X0^2"},
		{"triangular numbers", []float64{1, 2, 3, 4}, []float64{1, 3, 6, 10}, "0.5*X0^2 + 0.5*X0"},
		{"cubes", []float64{1, 2, 3, 4, 5}, []float64{1, 8, 27, 64, 125}, "X0^3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := s.Solve(context.Background(), tt.xs, tt.ys)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
			for i, x := range tt.xs {
				assert.InDelta(t, tt.ys[i], evalAt(t, e, x), 1e-9)
			}
		})
	}
}

func TestSolve_SquaresGeneralize(t *testing.T) {
	s := New(DefaultConfig(), nil)
	e, err := s.Solve(context.Background(), []float64{1, 2, 3}, []float64{1, 4, 9})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, evalAt(t, e, 10), 1e-9)
}

func TestSolve_Logarithmic(t *testing.T) {
	s := New(DefaultConfig(), nil)
	xs := []float64{1, 2, 4, 8, 16}
	ys := []float64{0, 1, 2, 3, 4}
	e, err := s.Solve(context.Background(), xs, ys)
	require.NoError(t, err)
	assert.Contains(t, e.String(), "log(X0)")
	assert.InDelta(t, 5.0, evalAt(t, e, 32), 1e-6)
}

func TestSolve_Linearithmic(t *testing.T) {
	s := New(DefaultConfig(), nil)
	xs := []float64{2, 4, 8, 16}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = x * math.Log2(x)
	}
	e, err := s.Solve(context.Background(), xs, ys)
	require.NoError(t, err)
	assert.InDelta(t, 32*5.0, evalAt(t, e, 32), 1e-6)
}

func TestSolve_BadInput(t *testing.T) {
	s := New(DefaultConfig(), nil)

	_, err := s.Solve(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = s.Solve(context.Background(), []float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = s.Solve(context.Background(), []float64{1}, []float64{math.NaN()})
	assert.ErrorIs(t, err, ErrBadInput)
}

// Cubic plus a sqrt term needs a program taller than any initial one and
// is not in the basis ladder, so the genetic stage must run.
func hardSamples() ([]float64, []float64) {
	xs := []float64{1, 4, 9, 16, 25}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = x*x*x + 7*math.Sqrt(x)
	}
	return xs, ys
}

func TestSolve_CanceledContext(t *testing.T) {
	s := New(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	xs, ys := hardSamples()
	_, err := s.Solve(ctx, xs, ys)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestEvolve_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Population = 60
	cfg.Generations = 5
	s := New(cfg, nil)
	xs, ys := hardSamples()

	e1, err1 := s.evolve(context.Background(), xs, ys)
	e2, err2 := s.evolve(context.Background(), xs, ys)
	assert.Equal(t, e1.String(), e2.String())
	if err1 != nil {
		require.Error(t, err2)
		assert.Equal(t, err1.Error(), err2.Error())
		assert.ErrorIs(t, err1, ErrNoConvergence)
		return
	}
	require.NoError(t, err2)
	assert.True(t, reproduces(e1, xs, ys, cfg.Tolerance))
}

func TestFitBasis_SkipsUndefined(t *testing.T) {
	logBasis := basis{name: "log", funcs: []basisFunc{fOne, fLog}}
	_, ok := fitBasis(logBasis, []float64{0, 1, 2}, []float64{0, 0, 0}, 1e-6)
	assert.False(t, ok)

	cubic := basis{name: "cubic", funcs: []basisFunc{fOne, fX, fX2, fX3}}
	_, ok = fitBasis(cubic, []float64{1, 2}, []float64{1, 8}, 1e-6)
	assert.False(t, ok)
}

func TestProgram_ProtectedEval(t *testing.T) {
	logNeg := &program{op: opLog, args: []*program{{op: opConst, value: -3}}}
	assert.Equal(t, 1.0, logNeg.eval(0))

	sqrtNeg := &program{op: opSqrt, args: []*program{{op: opConst, value: -4}}}
	assert.Equal(t, 1.0, sqrtNeg.eval(0))

	p := &program{op: opAdd, args: []*program{
		{op: opVar},
		{op: opMul, args: []*program{{op: opConst, value: 2}, {op: opVar}}},
	}}
	assert.Equal(t, 9.0, p.eval(3))
	assert.Equal(t, 2, p.height())
	assert.Equal(t, 5, p.size())
	assert.Equal(t, "3*X0", algebra.Simplify(p.expr()).String())
}

func TestGenerate_RespectsHeight(t *testing.T) {
	s := New(DefaultConfig(), nil)
	g := &search{cfg: s.cfg, rng: newRand(7)}
	for i := 0; i < 200; i++ {
		p := g.generate(1, 2, false)
		assert.LessOrEqual(t, p.height(), 2)
		full := g.generate(0, 1, true)
		assert.LessOrEqual(t, full.height(), 1)
	}
}
