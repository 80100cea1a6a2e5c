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
	"github.com/AleutianAI/costpath/services/costpath/algebra"
)

// Node is a single event in a trace tree.
//
// The concrete type is always one of *Stmt, *Loop, *Call or *Link.
type Node interface {
	// ID returns the static program point this node was recorded at.
	ID() ID

	// Type returns the raw type tag.
	Type() NodeType

	// Children returns the node's current children in trace order.
	// The returned slice must not be modified.
	Children() []Node

	// Parent returns the enclosing node, or nil for a root.
	Parent() Node

	// IsControlFlow reports whether the node appears in fingerprints.
	IsControlFlow() bool

	// IsLoop reports whether the node is a *Loop.
	IsLoop() bool

	// IsIterationMarker reports whether the node separates loop iterations.
	IsIterationMarker() bool

	node()
}

type base struct {
	id       ID
	typ      NodeType
	parent   Node
	children []Node
}

func (b *base) ID() ID                  { return b.id }
func (b *base) Type() NodeType          { return b.typ }
func (b *base) Children() []Node        { return b.children }
func (b *base) Parent() Node            { return b.parent }
func (b *base) IsControlFlow() bool     { return b.typ.IsControlFlow() }
func (b *base) IsLoop() bool            { return b.typ.IsLoop() }
func (b *base) IsIterationMarker() bool { return b.typ.IsIterationMarker() }
func (b *base) node()                   {}

// Stmt is a statement node. Desc is the human-readable source description,
// or the operator signature for operator nodes.
type Stmt struct {
	base
	desc string
}

// Desc returns the statement description.
func (s *Stmt) Desc() string { return s.desc }

// Loop is a loop statement. Its raw children are partitioned once, at
// construction, into a main iteration block repeated Count times and an
// optional trailing block that ran once.
type Loop struct {
	Stmt

	preBody   []Node
	postBody  []Node
	blocks    [][]Node
	main      []Node
	trailing  []Node
	count     int
	irregular bool

	countExpr    algebra.Expr
	hasCountExpr bool
}

// MainBlock returns the representative iteration block.
func (l *Loop) MainBlock() []Node { return l.main }

// TrailingBlock returns the structurally distinct final iteration, or nil.
func (l *Loop) TrailingBlock() []Node { return l.trailing }

// HasTrailingBlock reports whether the final iteration differed.
func (l *Loop) HasTrailingBlock() bool { return l.trailing != nil }

// Count returns how many times the main block ran. Always >= 0.
func (l *Loop) Count() int { return l.count }

// Blocks returns every iteration block found by the partitioner.
func (l *Loop) Blocks() [][]Node { return l.blocks }

// PreBody returns the children seen before the first iteration marker.
func (l *Loop) PreBody() []Node { return l.preBody }

// PostBody returns the first iteration's body with pre-body repeats removed.
func (l *Loop) PostBody() []Node { return l.postBody }

// Irregular reports whether the loop had more than one deviating iteration
// shape, or a deviating shape that was not the last block. The main/trailing
// split is still deterministic but only approximates such loops.
func (l *Loop) Irregular() bool { return l.irregular }

// SetCountExpr records the inferred loop-count expression.
func (l *Loop) SetCountExpr(e algebra.Expr) {
	l.countExpr = e
	l.hasCountExpr = true
}

// CountExpr returns the inferred loop-count expression, if one was set.
func (l *Loop) CountExpr() (algebra.Expr, bool) {
	return l.countExpr, l.hasCountExpr
}

// ClearCountExpr removes any inferred loop-count expression.
func (l *Loop) ClearCountExpr() {
	l.countExpr = algebra.Expr{}
	l.hasCountExpr = false
}

// Call is a caller-side or callee-side call.
type Call struct {
	base
	sig    string
	params []Param
}

// Signature returns the called function's signature.
func (c *Call) Signature() string { return c.sig }

// Params returns the call's arguments in declaration order.
func (c *Call) Params() []Param { return c.params }

// IsCallee reports whether the node records the callee side of the call.
func (c *Call) IsCallee() bool { return c.typ == TypeCallee }

// Key returns the call key of c.
func (c *Call) Key() CallKey { return KeyOf(c) }

// Link stands in for a callee subtree that re-enters a known trace root.
// It holds the call key only; a Resolver maps it back to the root.
type Link struct {
	base
	key CallKey
}

// NewLink returns a link replacing the callee c.
func NewLink(c *Call) *Link {
	return &Link{
		base: base{id: c.id, typ: c.typ},
		key:  KeyOf(c),
	}
}

// Key returns the call key the link points at.
func (l *Link) Key() CallKey { return l.key }

// IsControlFlow is false: a link's fingerprint entries come from its target.
func (l *Link) IsControlFlow() bool { return false }

// ReplaceChildren passes each child of n to fn and installs the result in
// its place. It reports whether any child changed.
//
// For a *Loop the iteration blocks are rewritten with the same mapping, so
// blocks keep referring to the current children. *Link has no children and
// is never changed.
func ReplaceChildren(n Node, fn func(Node) Node) bool {
	var b *base
	switch n := n.(type) {
	case *Stmt:
		b = &n.base
	case *Loop:
		b = &n.base
	case *Call:
		b = &n.base
	default:
		return false
	}

	replaced := make(map[Node]Node)
	for i, child := range b.children {
		next := fn(child)
		if next == child {
			continue
		}
		setParent(next, n)
		replaced[child] = next
		b.children[i] = next
	}
	if len(replaced) == 0 {
		return false
	}

	if loop, ok := n.(*Loop); ok {
		remap := func(block []Node) {
			for i, child := range block {
				if next, ok := replaced[child]; ok {
					block[i] = next
				}
			}
		}
		remap(loop.preBody)
		remap(loop.postBody)
		for _, block := range loop.blocks {
			remap(block)
		}
		remap(loop.main)
		remap(loop.trailing)
	}
	return true
}

func setParent(n, parent Node) {
	switch n := n.(type) {
	case *Stmt:
		n.parent = parent
	case *Loop:
		n.parent = parent
	case *Call:
		n.parent = parent
	case *Link:
		n.parent = parent
	}
}

// Walk visits n and its descendants in pre-order. Links are visited but not
// followed. Returning false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.Children() {
		Walk(child, fn)
	}
}
