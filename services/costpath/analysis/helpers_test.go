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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/trace"
)

// =============================================================================
// Trace builders shared by the analysis tests
// =============================================================================

func stmt(id int, typ, desc string, children ...trace.Record) trace.Record {
	return trace.Record{"id": id, "type": typ, "desc": desc, "children": kids(children)}
}

func call(id int, typ, sig string, args []string, children ...trace.Record) trace.Record {
	params := make([]any, len(args))
	for i, a := range args {
		params[i] = map[string]any{"name": "p" + strconv.Itoa(i), "value": a}
	}
	return trace.Record{"id": id, "type": typ, "sig": sig, "params": params, "children": kids(children)}
}

func callee(id int, sig string, arg string, children ...trace.Record) trace.Record {
	return call(id, "CalleeExpr", sig, []string{arg}, children...)
}

func kids(children []trace.Record) []any {
	out := make([]any, len(children))
	for i, c := range children {
		out[i] = c
	}
	return out
}

func ifStmt(id int, children ...trace.Record) trace.Record {
	return stmt(id, "IfThenStmt", "n < 2", children...)
}

func retStmt(id int, children ...trace.Record) trace.Record {
	return stmt(id, "ReturnStmt", "return", children...)
}

func decl(id int) trace.Record {
	return stmt(id, "DeclStmt", "int s = 0")
}

func mustTree(t *testing.T, rec trace.Record) *trace.Tree {
	t.Helper()
	tree, err := trace.NewTree(rec)
	require.NoError(t, err)
	return tree
}

// sumTree is a summation loop run n times: cond, marker, body per
// iteration and a final failing cond.
func sumTree(t *testing.T, arg string, n int) *trace.Tree {
	t.Helper()
	var loop []trace.Record
	for i := 0; i < n; i++ {
		loop = append(loop,
			stmt(4, "BinaryOperator", "i < n"),
			stmt(5, "LoopIter", "iter"),
			stmt(6, "CompoundAssignOperator", "s += i"),
		)
	}
	loop = append(loop, stmt(4, "BinaryOperator", "i < n"))
	return mustTree(t, callee(1, "int sum(int)", arg,
		decl(2),
		stmt(3, "ForStmt", "for (i = 0; i < n; i++)", loop...),
		retStmt(7),
	))
}

// fibForest is fib(0), fib(1) and fib(2), where fib(2) re-enters the other
// two roots.
func fibForest(t *testing.T) []*trace.Tree {
	t.Helper()
	const sig = "int fib(int)"
	leaf := func(arg string) trace.Record {
		return callee(1, sig, arg, ifStmt(2, retStmt(3)))
	}
	return []*trace.Tree{
		mustTree(t, leaf("0")),
		mustTree(t, leaf("1")),
		mustTree(t, callee(1, sig, "2",
			ifStmt(2),
			retStmt(4, leaf("1"), leaf("0")),
		)),
	}
}

type stubSolver struct {
	expr  algebra.Expr
	err   error
	calls int
}

func (s *stubSolver) Solve(_ context.Context, _, _ []float64) (algebra.Expr, error) {
	s.calls++
	return s.expr, s.err
}
