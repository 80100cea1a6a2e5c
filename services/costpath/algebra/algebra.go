// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package algebra implements the symbolic cost expressions produced by the
// analysis: sums of products of named unknowns (T_12, C_7, X0, ...), numeric
// coefficients, integer powers and the log/sqrt functions the solver uses.
//
// Every Expr is kept in a canonical form (like terms combined, zero terms
// dropped, terms ordered by degree then name), so two expressions are equal
// exactly when their String renderings are equal. The zero value is the
// constant 0.
//
// Expr values are immutable and safe to share between goroutines.
package algebra

import (
	"errors"
	"math"
	"sort"
	"strings"
)

var (
	// ErrSyntax is returned by Parse for malformed input.
	ErrSyntax = errors.New("expression syntax error")

	// ErrUnsupported is returned for well-formed input the algebra cannot
	// represent, such as division by a sum or a non-integer power.
	ErrUnsupported = errors.New("unsupported expression")

	// ErrUnbound is returned by Eval when a free symbol has no value.
	ErrUnbound = errors.New("unbound symbol")
)

// Expr is a canonical symbolic expression.
type Expr struct {
	terms []term
}

type term struct {
	coeff float64
	mono  monomial
}

// monomial is a product of factor powers, sorted by factor key.
type monomial []power

type power struct {
	f   factor
	exp int
}

type factor struct {
	fn   string // "" for a plain symbol, otherwise "log" or "sqrt"
	name string
	arg  Expr
	key  string
}

// Num returns the constant c.
func Num(c float64) Expr {
	c = normCoeff(c)
	if c == 0 {
		return Expr{}
	}
	return Expr{terms: []term{{coeff: c}}}
}

// Sym returns the symbol with the given name.
func Sym(name string) Expr {
	f := factor{name: name, key: name}
	return Expr{terms: []term{{coeff: 1, mono: monomial{{f: f, exp: 1}}}}}
}

// Log returns the natural logarithm of e. Positive constants are folded.
func Log(e Expr) Expr {
	if c, ok := e.Const(); ok && c > 0 {
		return Num(math.Log(c))
	}
	return fn("log", e)
}

// Sqrt returns the square root of e. Non-negative constants are folded.
func Sqrt(e Expr) Expr {
	if c, ok := e.Const(); ok && c >= 0 {
		return Num(math.Sqrt(c))
	}
	return fn("sqrt", e)
}

func fn(name string, arg Expr) Expr {
	f := factor{fn: name, arg: arg, key: name + "(" + arg.String() + ")"}
	return Expr{terms: []term{{coeff: 1, mono: monomial{{f: f, exp: 1}}}}}
}

// Add returns a + b.
func Add(a, b Expr) Expr {
	return combine(append(append([]term(nil), a.terms...), b.terms...))
}

// Sum returns the sum of exprs; the empty sum is 0.
func Sum(exprs ...Expr) Expr {
	var all []term
	for _, e := range exprs {
		all = append(all, e.terms...)
	}
	return combine(all)
}

// Neg returns -e.
func Neg(e Expr) Expr {
	return Scale(e, -1)
}

// Sub returns a - b.
func Sub(a, b Expr) Expr {
	return Add(a, Neg(b))
}

// Scale returns c * e.
func Scale(e Expr, c float64) Expr {
	terms := make([]term, len(e.terms))
	for i, t := range e.terms {
		terms[i] = term{coeff: t.coeff * c, mono: t.mono}
	}
	return combine(terms)
}

// Mul returns a * b, fully distributed.
func Mul(a, b Expr) Expr {
	var terms []term
	for _, ta := range a.terms {
		for _, tb := range b.terms {
			terms = append(terms, term{coeff: ta.coeff * tb.coeff, mono: mulMono(ta.mono, tb.mono)})
		}
	}
	return combine(terms)
}

// Pow returns e raised to the integer power n. Negative powers are only
// supported for single-term expressions.
func Pow(e Expr, n int) (Expr, error) {
	switch {
	case n == 0:
		return Num(1), nil
	case n > 0:
		out := e
		for i := 1; i < n; i++ {
			out = Mul(out, e)
		}
		return out, nil
	}
	inv, err := inverse(e)
	if err != nil {
		return Expr{}, err
	}
	return Pow(inv, -n)
}

// Div returns a / b. b must be a single term.
func Div(a, b Expr) (Expr, error) {
	inv, err := inverse(b)
	if err != nil {
		return Expr{}, err
	}
	return Mul(a, inv), nil
}

func inverse(e Expr) (Expr, error) {
	if len(e.terms) != 1 {
		if len(e.terms) == 0 {
			return Expr{}, errors.Join(ErrUnsupported, errors.New("division by zero"))
		}
		return Expr{}, errors.Join(ErrUnsupported, errors.New("division by a sum"))
	}
	t := e.terms[0]
	mono := make(monomial, len(t.mono))
	for i, p := range t.mono {
		mono[i] = power{f: p.f, exp: -p.exp}
	}
	return Expr{terms: []term{{coeff: normCoeff(1 / t.coeff), mono: mono}}}, nil
}

// Simplify returns e with coefficients that are within float noise of an
// integer snapped to it and like terms recombined.
func Simplify(e Expr) Expr {
	terms := make([]term, len(e.terms))
	for i, t := range e.terms {
		mono := make(monomial, len(t.mono))
		for j, p := range t.mono {
			f := p.f
			if f.fn != "" {
				f.arg = Simplify(f.arg)
				f.key = f.fn + "(" + f.arg.String() + ")"
			}
			mono[j] = power{f: f, exp: p.exp}
		}
		sortMono(mono)
		terms[i] = term{coeff: normCoeff(t.coeff), mono: mono}
	}
	return combine(terms)
}

// Equal reports whether e and o are the same canonical expression.
func (e Expr) Equal(o Expr) bool {
	return e.String() == o.String()
}

// IsZero reports whether e is the constant 0.
func (e Expr) IsZero() bool {
	return len(e.terms) == 0
}

// Const returns e's value if e is a constant.
func (e Expr) Const() (float64, bool) {
	switch {
	case len(e.terms) == 0:
		return 0, true
	case len(e.terms) == 1 && len(e.terms[0].mono) == 0:
		return e.terms[0].coeff, true
	}
	return 0, false
}

// Symbols returns the sorted names of all free symbols in e, including
// those inside function arguments.
func (e Expr) Symbols() []string {
	seen := make(map[string]bool)
	e.collectSymbols(seen)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e Expr) collectSymbols(seen map[string]bool) {
	for _, t := range e.terms {
		for _, p := range t.mono {
			if p.f.fn == "" {
				seen[p.f.name] = true
			} else {
				p.f.arg.collectSymbols(seen)
			}
		}
	}
}

// Terms returns the number of terms in e.
func (e Expr) Terms() int {
	return len(e.terms)
}

func mulMono(a, b monomial) monomial {
	out := make(monomial, 0, len(a)+len(b))
	out = append(out, a...)
	for _, p := range b {
		merged := false
		for i := range out {
			if out[i].f.key == p.f.key {
				out[i].exp += p.exp
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, p)
		}
	}
	out = dropZeroExp(out)
	sortMono(out)
	return out
}

func dropZeroExp(m monomial) monomial {
	kept := m[:0]
	for _, p := range m {
		if p.exp != 0 {
			kept = append(kept, p)
		}
	}
	return kept
}

func sortMono(m monomial) {
	sort.Slice(m, func(i, j int) bool { return m[i].f.key < m[j].f.key })
}

func (m monomial) key() string {
	parts := make([]string, len(m))
	for i, p := range m {
		parts[i] = p.String()
	}
	return strings.Join(parts, "*")
}

func (m monomial) degree() int {
	d := 0
	for _, p := range m {
		d += p.exp
	}
	return d
}

// combine merges like terms, drops zero terms and sorts into canonical order.
func combine(terms []term) Expr {
	index := make(map[string]int)
	var out []term
	for _, t := range terms {
		k := t.mono.key()
		if i, ok := index[k]; ok {
			out[i].coeff += t.coeff
			continue
		}
		index[k] = len(out)
		out = append(out, t)
	}

	kept := out[:0]
	for _, t := range out {
		t.coeff = normCoeff(t.coeff)
		if t.coeff != 0 {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		di, dj := kept[i].mono.degree(), kept[j].mono.degree()
		if di != dj {
			return di > dj
		}
		return kept[i].mono.key() < kept[j].mono.key()
	})
	if len(kept) == 0 {
		return Expr{}
	}
	return Expr{terms: kept}
}

// normCoeff snaps values within float noise of an integer onto it.
func normCoeff(c float64) float64 {
	r := math.Round(c)
	if math.Abs(c-r) <= 1e-9*math.Max(1, math.Abs(c)) {
		return r + 0
	}
	return c
}
