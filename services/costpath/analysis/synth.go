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
	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/trace"
)

// StmtAtom returns the unknown-cost symbol of a statement or caller-side
// call, "T_<id>".
func StmtAtom(id trace.ID) algebra.Expr { return algebra.Sym("T_" + string(id)) }

// CallAtom returns the unknown-cost symbol of a callee-side call, "C_<id>".
func CallAtom(id trace.ID) algebra.Expr { return algebra.Sym("C_" + string(id)) }

// ToExpr synthesizes the cost expression of n.
//
// Description:
//
//	Statements contribute their known expression, nothing if they are
//	control flow, or a T atom. Loops sum their main block, multiplied by the
//	loop's count expression when one is set, plus their trailing block once.
//	Callee calls contribute a C atom plus their children. Caller calls
//	contribute their known expression or a T atom and hide their children.
//	Links expand to their resolved target; a link that cannot be resolved,
//	or that re-enters a call key already being expanded, is an opaque C atom.
//
// Inputs:
//
//	n - The subtree root.
//	known - Known expressions by statement description or call signature.
//	        May be nil.
//	r - Resolves links. May be nil.
//
// Outputs:
//
//	algebra.Expr - The expression.
//	bool - False when nothing in the subtree contributes a term.
func ToExpr(n trace.Node, known map[string]algebra.Expr, r trace.Resolver) (algebra.Expr, bool) {
	s := synth{known: known, resolver: r, active: make(map[trace.CallKey]bool)}
	return s.expr(n)
}

type synth struct {
	known    map[string]algebra.Expr
	resolver trace.Resolver
	active   map[trace.CallKey]bool
}

// partial is a running sum that starts out null.
type partial struct {
	sum algebra.Expr
	ok  bool
}

func (p *partial) add(e algebra.Expr, ok bool) {
	if !ok {
		return
	}
	if !p.ok {
		p.sum, p.ok = e, true
		return
	}
	p.sum = algebra.Add(p.sum, e)
}

func (s *synth) sum(nodes []trace.Node) partial {
	var p partial
	for _, n := range nodes {
		p.add(s.expr(n))
	}
	return p
}

func (s *synth) expr(n trace.Node) (algebra.Expr, bool) {
	switch n := n.(type) {
	case *trace.Loop:
		p := s.sum(n.MainBlock())
		if count, ok := n.CountExpr(); ok && p.ok {
			p.sum = algebra.Mul(count, p.sum)
		}
		if n.HasTrailingBlock() {
			t := s.sum(n.TrailingBlock())
			p.add(t.sum, t.ok)
		}
		return p.sum, p.ok

	case *trace.Stmt:
		var p partial
		switch e, ok := s.known[n.Desc()]; {
		case ok:
			p.add(e, true)
		case !n.IsControlFlow():
			p.add(StmtAtom(n.ID()), true)
		}
		c := s.sum(n.Children())
		p.add(c.sum, c.ok)
		return p.sum, p.ok

	case *trace.Call:
		if !n.IsCallee() {
			if e, ok := s.known[n.Signature()]; ok {
				return e, true
			}
			return StmtAtom(n.ID()), true
		}
		if n.Parent() == nil {
			key := n.Key()
			s.active[key] = true
			defer delete(s.active, key)
		}
		p := partial{sum: CallAtom(n.ID()), ok: true}
		c := s.sum(n.Children())
		p.add(c.sum, c.ok)
		return p.sum, p.ok

	case *trace.Link:
		target, ok := trace.Deref(n, s.resolver)
		if !ok || s.active[n.Key()] {
			return CallAtom(n.ID()), true
		}
		s.active[n.Key()] = true
		defer delete(s.active, n.Key())
		return s.expr(target)
	}
	return algebra.Expr{}, false
}
