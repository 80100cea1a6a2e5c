// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algebra

import (
	"fmt"
	"math"
)

// Eval evaluates e with the given symbol values.
func (e Expr) Eval(env map[string]float64) (float64, error) {
	total := 0.0
	for _, t := range e.terms {
		v := t.coeff
		for _, p := range t.mono {
			f, err := p.f.eval(env)
			if err != nil {
				return 0, err
			}
			v *= math.Pow(f, float64(p.exp))
		}
		total += v
	}
	return total, nil
}

func (f factor) eval(env map[string]float64) (float64, error) {
	if f.fn == "" {
		v, ok := env[f.name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnbound, f.name)
		}
		return v, nil
	}
	arg, err := f.arg.Eval(env)
	if err != nil {
		return 0, err
	}
	switch f.fn {
	case "log":
		return math.Log(arg), nil
	case "sqrt":
		return math.Sqrt(arg), nil
	}
	return 0, fmt.Errorf("%w: function %s", ErrUnsupported, f.fn)
}

// Substitute replaces every occurrence of the symbol name with value.
func Substitute(e Expr, name string, value Expr) Expr {
	out := Expr{}
	for _, t := range e.terms {
		product := Num(t.coeff)
		for _, p := range t.mono {
			var base Expr
			switch p.f.fn {
			case "":
				if p.f.name == name {
					base = value
				} else {
					base = Sym(p.f.name)
				}
			case "log":
				base = Log(Substitute(p.f.arg, name, value))
			default:
				base = Sqrt(Substitute(p.f.arg, name, value))
			}
			raised, err := Pow(base, p.exp)
			if err != nil {
				// The substituted base is a sum under a negative power; keep
				// the original factor rather than expanding it.
				raised = Expr{terms: []term{{coeff: 1, mono: monomial{p}}}}
			}
			product = Mul(product, raised)
		}
		out = Add(out, product)
	}
	return out
}
