// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Record helpers
// =============================================================================

func stmtRec(id any, typ, desc string, children ...Record) Record {
	return Record{"id": id, "type": typ, "desc": desc, "children": toAny(children)}
}

func callRec(id any, typ, sig string, params []Param, children ...Record) Record {
	ps := make([]any, len(params))
	for i, p := range params {
		ps[i] = map[string]any{"name": p.Name, "value": p.Value}
	}
	return Record{"id": id, "type": typ, "sig": sig, "params": ps, "children": toAny(children)}
}

func toAny(children []Record) []any {
	out := make([]any, len(children))
	for i, c := range children {
		out[i] = c
	}
	return out
}

func marker(id any) Record { return stmtRec(id, "LoopIter", "iter") }
func body(id any) Record   { return stmtRec(id, "CompoundAssignOperator", "sum += i") }
func cond(id any) Record   { return stmtRec(id, "BinaryOperator", "i < n") }
func ret(id any) Record    { return stmtRec(id, "ReturnStmt", "return sum") }

func buildLoop(t *testing.T, children ...Record) *Loop {
	t.Helper()
	l, err := LoopFromRecord(stmtRec(100, "ForStmt", "for (...)", children...))
	require.NoError(t, err)
	return l
}

type mapResolver map[CallKey]*Call

func (m mapResolver) Resolve(key CallKey) (*Call, bool) {
	c, ok := m[key]
	return c, ok
}

// =============================================================================
// Construction
// =============================================================================

func TestFromRecord_Variants(t *testing.T) {
	rec := callRec(1, "CalleeExpr", "int f(int)", []Param{{Name: "n", Value: "3"}},
		stmtRec(2, "IfThenStmt", "n > 1"),
		stmtRec(3, "WhileStmt", "while (n)"),
		callRec(4, "CallerExpr", "int g()", nil),
	)
	n, err := FromRecord(rec)
	require.NoError(t, err)

	root, ok := n.(*Call)
	require.True(t, ok)
	assert.Equal(t, ID("1"), root.ID())
	assert.True(t, root.IsCallee())
	assert.Nil(t, root.Parent())
	require.Len(t, root.Children(), 3)

	stmt, ok := root.Children()[0].(*Stmt)
	require.True(t, ok)
	assert.Equal(t, "n > 1", stmt.Desc())
	assert.True(t, stmt.IsControlFlow())
	assert.Same(t, root, stmt.Parent().(*Call))

	loop, ok := root.Children()[1].(*Loop)
	require.True(t, ok)
	assert.True(t, loop.IsLoop())
	assert.Zero(t, loop.Count())

	caller, ok := root.Children()[2].(*Call)
	require.True(t, ok)
	assert.False(t, caller.IsCallee())
	assert.Empty(t, caller.Params())
}

func TestFromRecord_NumericIDs(t *testing.T) {
	var rec Record
	doc := `{"id": 264379, "type": "ReturnStmt", "desc": "return 0", "children": []}`
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&rec))

	n, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, ID("264379"), n.ID())
}

func TestFromRecord_SigPreferredOverDesc(t *testing.T) {
	rec := Record{"id": "7", "type": "CXXOperatorCallExpr", "sig": "operator+", "desc": "a + b"}
	s, err := StmtFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "operator+", s.Desc())
}

func TestFromRecord_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		rec       Record
		wantField string
	}{
		{"missing type", Record{"id": 1, "desc": "x"}, "type"},
		{"missing id", Record{"type": "ReturnStmt", "desc": "x"}, "id"},
		{"empty type", Record{"id": 1, "type": "", "desc": "x"}, "type"},
		{"missing desc", Record{"id": 1, "type": "ReturnStmt"}, "desc"},
		{"call without params", Record{"id": 1, "type": "CallerExpr", "sig": "f()"}, "params"},
		{"call without sig", Record{"id": 1, "type": "CallerExpr", "params": []any{}}, "sig"},
		{"children not array", Record{"id": 1, "type": "ReturnStmt", "desc": "x", "children": "no"}, "children"},
		{
			"nested child missing type",
			stmtRec(1, "IfThenStmt", "c", Record{"id": 2, "desc": "x"}),
			"type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := FromRecord(tt.rec)
			require.Error(t, err)
			assert.Nil(t, n)
			assert.ErrorIs(t, err, ErrMalformedTrace)

			var mErr *MalformedTraceError
			require.ErrorAs(t, err, &mErr)
			assert.Equal(t, tt.wantField, mErr.Field)
		})
	}
}

func TestFromRecord_FamilyMismatch(t *testing.T) {
	_, err := StmtFromRecord(callRec(1, "CallerExpr", "f()", nil))
	require.ErrorIs(t, err, ErrMalformedTrace)
	assert.Contains(t, err.Error(), `type "CallerExpr" is not a statement type`)

	_, err = CallFromRecord(stmtRec(1, "ReturnStmt", "return 0"))
	require.ErrorIs(t, err, ErrMalformedTrace)
	assert.Contains(t, err.Error(), "is not a call type")

	_, err = LoopFromRecord(stmtRec(1, "IfThenStmt", "c"))
	require.ErrorIs(t, err, ErrMalformedTrace)
}

// =============================================================================
// Loop partitioning
// =============================================================================

func TestLoop_NoChildren(t *testing.T) {
	l := buildLoop(t)
	assert.Zero(t, l.Count())
	assert.False(t, l.HasTrailingBlock())
	assert.Empty(t, l.MainBlock())
}

func TestLoop_NoMarker(t *testing.T) {
	l := buildLoop(t, cond(1))
	assert.Zero(t, l.Count())
	assert.False(t, l.HasTrailingBlock())
	assert.Len(t, l.PreBody(), 1)
}

func TestLoop_ConsistentIterations(t *testing.T) {
	l := buildLoop(t, marker(1), body(2), marker(1), body(2), marker(1), body(2))
	assert.Equal(t, 3, l.Count())
	assert.False(t, l.HasTrailingBlock())
	assert.False(t, l.Irregular())
	assert.Len(t, l.Blocks(), 3)
	assert.Len(t, l.MainBlock(), 2)
}

func TestLoop_ConditionReevaluated(t *testing.T) {
	l := buildLoop(t,
		cond(1), marker(2), body(3),
		cond(1), marker(2), body(3),
		cond(1),
	)
	assert.Equal(t, 2, l.Count())
	assert.Len(t, l.PreBody(), 1)
	assert.Len(t, l.PostBody(), 1)
	require.True(t, l.HasTrailingBlock())
	assert.Len(t, l.TrailingBlock(), 1)
	assert.False(t, l.Irregular())
}

func TestLoop_TrailingBlock(t *testing.T) {
	l := buildLoop(t, marker(1), body(2), marker(1), body(2), marker(1), ret(3))
	assert.Equal(t, 2, l.Count())
	require.True(t, l.HasTrailingBlock())
	assert.Equal(t, ID("3"), l.TrailingBlock()[1].ID())
	assert.False(t, l.Irregular())
}

func TestLoop_IrregularShapes(t *testing.T) {
	t.Run("last block matches main", func(t *testing.T) {
		l := buildLoop(t, marker(1), body(2), marker(1), ret(3), marker(1), body(2))
		assert.Equal(t, 3, l.Count())
		assert.False(t, l.HasTrailingBlock())
		assert.True(t, l.Irregular())
	})

	t.Run("last block differs from main", func(t *testing.T) {
		l := buildLoop(t, marker(1), body(2), marker(1), ret(3), marker(1), body(2), marker(1), ret(3))
		assert.Equal(t, 3, l.Count())
		require.True(t, l.HasTrailingBlock())
		assert.Equal(t, ID("3"), l.TrailingBlock()[1].ID())
		assert.NotEqual(t, blockFingerprint(l.MainBlock()), blockFingerprint(l.TrailingBlock()))
		assert.True(t, l.Irregular())
	})
}

func TestLoop_CountExpr(t *testing.T) {
	l := buildLoop(t, marker(1), body(2))
	_, ok := l.CountExpr()
	assert.False(t, ok)

	l.SetCountExpr(algebra.Sym("X0"))
	e, ok := l.CountExpr()
	require.True(t, ok)
	assert.Equal(t, "X0", e.String())

	l.ClearCountExpr()
	_, ok = l.CountExpr()
	assert.False(t, ok)
}

// =============================================================================
// Rendering and equality
// =============================================================================

func TestRenderAndEqual(t *testing.T) {
	a, err := FromRecord(stmtRec(1, "IfThenStmt", "n > 1", ret(2)))
	require.NoError(t, err)
	b, err := FromRecord(stmtRec(1, "IfThenStmt", "n > 1", ret(2)))
	require.NoError(t, err)
	c, err := FromRecord(stmtRec(1, "IfThenStmt", "n > 1", ret(3)))
	require.NoError(t, err)

	assert.Equal(t, `Stmt(id=1, type=IfThenStmt, desc="n > 1")[Stmt(id=2, type=ReturnStmt, desc="return sum")]`, Render(a))
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(a, nil))
}

func TestDump(t *testing.T) {
	l := buildLoop(t, marker(1), body(2), marker(1), ret(3))
	out := Dump(l)
	assert.Contains(t, out, "count=1 trailing=2")
	assert.Contains(t, out, "├── Stmt(id=1")
	assert.Contains(t, out, "└── Stmt(id=3")
}

// =============================================================================
// Links and trails
// =============================================================================

func fibTrees(t *testing.T) (*Tree, *Tree) {
	t.Helper()
	sig := "int fib(int)"
	outer, err := NewTree(callRec(1, "CalleeExpr", sig, []Param{{Name: "n", Value: "2"}},
		stmtRec(10, "IfThenStmt", "n < 2"),
		callRec(20, "CalleeExpr", sig, []Param{{Name: "n", Value: "1"}},
			stmtRec(10, "IfThenStmt", "n < 2"),
			stmtRec(30, "ReturnStmt", "return n"),
		),
	))
	require.NoError(t, err)
	inner, err := NewTree(callRec(20, "CalleeExpr", sig, []Param{{Name: "n", Value: "1"}},
		stmtRec(10, "IfThenStmt", "n < 2"),
		stmtRec(30, "ReturnStmt", "return n"),
	))
	require.NoError(t, err)
	return outer, inner
}

func TestTree_Naming(t *testing.T) {
	outer, _ := fibTrees(t)
	assert.Equal(t, "int fib(int)(n=2)", outer.Name)
	assert.Equal(t, CallKey("int fib(int): (2)"), outer.Key())
	assert.Equal(t, "2", outer.Args())
	assert.False(t, outer.HasLoop())
}

func TestReplaceChildren_Link(t *testing.T) {
	outer, inner := fibTrees(t)
	before := outer.ControlFlowTrail(nil)
	assert.Equal(t, []ID{"10", "10", "30"}, before)

	changed := ReplaceChildren(outer.Root, func(n Node) Node {
		if c, ok := n.(*Call); ok && c.IsCallee() {
			return NewLink(c)
		}
		return n
	})
	require.True(t, changed)

	link, ok := outer.Root.Children()[1].(*Link)
	require.True(t, ok)
	assert.Equal(t, inner.Key(), link.Key())
	assert.Same(t, outer.Root, link.Parent().(*Call))

	// Unresolved links contribute nothing; resolved ones inline the target.
	assert.Equal(t, []ID{"10"}, outer.ControlFlowTrail(nil))
	r := mapResolver{inner.Key(): inner.Root}
	assert.Equal(t, before, outer.ControlFlowTrail(r))

	assert.False(t, ReplaceChildren(link, func(n Node) Node { return n }))
}

func TestControlFlowTrail_SelfLinkTerminates(t *testing.T) {
	root, err := CallFromRecord(callRec(1, "CalleeExpr", "void f(int)", []Param{{Name: "n", Value: "1"}},
		stmtRec(10, "IfThenStmt", "c"),
		callRec(2, "CalleeExpr", "void f(int)", []Param{{Name: "n", Value: "1"}}),
	))
	require.NoError(t, err)
	ReplaceChildren(root, func(n Node) Node {
		if c, ok := n.(*Call); ok {
			return NewLink(c)
		}
		return n
	})

	r := mapResolver{root.Key(): root}
	assert.Equal(t, []ID{"10"}, ControlFlowTrail(root, r))
}

func TestControlFlowTrail_LoopUsesRepresentativeBlocks(t *testing.T) {
	short := buildLoop(t, marker(1), stmtRec(5, "IfThenStmt", "x"), marker(1), stmtRec(5, "IfThenStmt", "x"))
	long := buildLoop(t,
		marker(1), stmtRec(5, "IfThenStmt", "x"),
		marker(1), stmtRec(5, "IfThenStmt", "x"),
		marker(1), stmtRec(5, "IfThenStmt", "x"),
	)
	assert.Equal(t, []ID{"100", "1", "5"}, ControlFlowTrail(short, nil))
	assert.Equal(t, ControlFlowTrail(short, nil), ControlFlowTrail(long, nil))
}

func TestReplaceChildren_RemapsLoopBlocks(t *testing.T) {
	l := buildLoop(t, marker(1), callRec(2, "CalleeExpr", "g()", nil), marker(1), callRec(2, "CalleeExpr", "g()", nil))
	ReplaceChildren(l, func(n Node) Node {
		if c, ok := n.(*Call); ok {
			return NewLink(c)
		}
		return n
	})
	for _, block := range l.Blocks() {
		_, ok := block[1].(*Link)
		assert.True(t, ok)
	}
	_, ok := l.MainBlock()[1].(*Link)
	assert.True(t, ok)
}

func TestLoopNodes_Order(t *testing.T) {
	root, err := CallFromRecord(callRec(1, "CalleeExpr", "f()", nil,
		stmtRec(2, "ForStmt", "outer",
			marker(3),
			stmtRec(4, "WhileStmt", "inner", marker(5), body(6)),
		),
		stmtRec(7, "WhileStmt", "tail"),
	))
	require.NoError(t, err)

	var ids []ID
	for _, l := range LoopNodes(root) {
		ids = append(ids, l.ID())
	}
	assert.Equal(t, []ID{"4", "2", "7"}, ids)

	ids = nil
	for _, l := range RepresentativeLoops(root) {
		ids = append(ids, l.ID())
	}
	assert.Equal(t, []ID{"4", "2", "7"}, ids)
}

func TestWalk_SkipsChildren(t *testing.T) {
	n, err := FromRecord(stmtRec(1, "IfThenStmt", "c", stmtRec(2, "IfThenStmt", "d", ret(3))))
	require.NoError(t, err)

	var seen []ID
	Walk(n, func(n Node) bool {
		seen = append(seen, n.ID())
		return n.ID() != "2"
	})
	assert.Equal(t, []ID{"1", "2"}, seen)
}
