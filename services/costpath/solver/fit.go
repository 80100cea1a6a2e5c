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
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
)

// basisFunc is one column of a least-squares design matrix.
type basisFunc struct {
	eval func(x float64) (float64, bool)
	expr algebra.Expr
}

type basis struct {
	name  string
	funcs []basisFunc
}

var (
	varX = algebra.Sym(Var)

	fOne = basisFunc{
		eval: func(float64) (float64, bool) { return 1, true },
		expr: algebra.Num(1),
	}
	fX = basisFunc{
		eval: func(v float64) (float64, bool) { return v, true },
		expr: varX,
	}
	fX2 = basisFunc{
		eval: func(v float64) (float64, bool) { return v * v, true },
		expr: algebra.Mul(varX, varX),
	}
	fX3 = basisFunc{
		eval: func(v float64) (float64, bool) { return v * v * v, true },
		expr: algebra.Mul(varX, algebra.Mul(varX, varX)),
	}
	fLog = basisFunc{
		eval: func(v float64) (float64, bool) { return math.Log(v), v > 0 },
		expr: algebra.Log(varX),
	}
	fSqrt = basisFunc{
		eval: func(v float64) (float64, bool) { return math.Sqrt(v), v >= 0 },
		expr: algebra.Sqrt(varX),
	}
	fXLogX = basisFunc{
		eval: func(v float64) (float64, bool) { return v * math.Log(v), v > 0 },
		expr: algebra.Mul(varX, algebra.Log(varX)),
	}
)

// ladder is tried in order; simpler shapes come first so that an exact
// interpolation by a larger basis never shadows a smaller one.
var ladder = []basis{
	{name: "constant", funcs: []basisFunc{fOne}},
	{name: "linear", funcs: []basisFunc{fOne, fX}},
	{name: "logarithmic", funcs: []basisFunc{fOne, fLog}},
	{name: "sqrt", funcs: []basisFunc{fOne, fSqrt}},
	{name: "linearithmic", funcs: []basisFunc{fOne, fXLogX}},
	{name: "quadratic", funcs: []basisFunc{fOne, fX, fX2}},
	{name: "quadratic-linearithmic", funcs: []basisFunc{fOne, fX, fXLogX}},
	{name: "cubic", funcs: []basisFunc{fOne, fX, fX2, fX3}},
}

// fitBasis solves the least-squares problem for b and reports whether the
// resulting expression reproduces the samples. Bases with more columns than
// samples, or undefined at some sample, are skipped.
func fitBasis(b basis, xs, ys []float64, tol float64) (algebra.Expr, bool) {
	n, k := len(xs), len(b.funcs)
	if n < k {
		return algebra.Expr{}, false
	}

	a := mat.NewDense(n, k, nil)
	for i, xv := range xs {
		for j, f := range b.funcs {
			v, ok := f.eval(xv)
			if !ok || !finite(v) {
				return algebra.Expr{}, false
			}
			a.Set(i, j, v)
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), ys...))

	var coef mat.VecDense
	if err := coef.SolveVec(a, y); err != nil {
		// Rank deficient: the basis does not separate these samples.
		return algebra.Expr{}, false
	}

	terms := make([]algebra.Expr, k)
	for j, f := range b.funcs {
		terms[j] = algebra.Scale(f.expr, coef.AtVec(j))
	}
	e := algebra.Simplify(algebra.Sum(terms...))
	if !reproduces(e, xs, ys, tol) {
		return algebra.Expr{}, false
	}
	return e, true
}
