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

// ControlFlowTrail returns the IDs of the control-flow nodes in n's subtree,
// in trace order.
//
// A *Loop contributes its own ID followed by the trails of its main and
// trailing blocks only, so traces that differ just in trip count share a
// trail. A *Link contributes its target's trail; a link re-entering a call
// key that is already being expanded contributes nothing.
func ControlFlowTrail(n Node, r Resolver) []ID {
	w := trailWalker{resolver: r, active: make(map[CallKey]bool)}
	w.walk(n)
	return w.ids
}

type trailWalker struct {
	resolver Resolver
	active   map[CallKey]bool
	ids      []ID
}

func (w *trailWalker) walk(n Node) {
	switch n := n.(type) {
	case *Loop:
		w.ids = append(w.ids, n.id)
		w.walkAll(n.main)
		w.walkAll(n.trailing)
	case *Link:
		target, ok := Deref(n, w.resolver)
		if !ok || w.active[n.key] {
			return
		}
		w.active[n.key] = true
		w.walk(target)
		delete(w.active, n.key)
	case *Call:
		// A root must not be re-entered through a link to itself.
		if n.parent == nil {
			key := KeyOf(n)
			w.active[key] = true
			defer delete(w.active, key)
		}
		w.walkAll(n.children)
	default:
		if n.IsControlFlow() {
			w.ids = append(w.ids, n.ID())
		}
		w.walkAll(n.Children())
	}
}

func (w *trailWalker) walkAll(nodes []Node) {
	for _, n := range nodes {
		w.walk(n)
	}
}

// Deref resolves a link to its target root. It returns false when r is nil
// or does not know the key.
func Deref(l *Link, r Resolver) (*Call, bool) {
	if r == nil {
		return nil, false
	}
	return r.Resolve(l.key)
}

// LoopNodes returns every *Loop in n's subtree in post-order, walking raw
// children. Links are not followed.
func LoopNodes(n Node) []*Loop {
	var loops []*Loop
	for _, child := range n.Children() {
		loops = append(loops, LoopNodes(child)...)
	}
	if l, ok := n.(*Loop); ok {
		loops = append(loops, l)
	}
	return loops
}

// RepresentativeLoops returns the loops that expression synthesis visits, in
// post-order: for a *Loop only its main and trailing blocks are searched.
// Links are not followed.
//
// Trees that share a fingerprint yield the same number of representative
// loops in the same order, which is what lets loops be matched by index
// across a path group.
func RepresentativeLoops(n Node) []*Loop {
	var loops []*Loop
	collect := func(nodes []Node) {
		for _, child := range nodes {
			loops = append(loops, RepresentativeLoops(child)...)
		}
	}
	if l, ok := n.(*Loop); ok {
		collect(l.main)
		collect(l.trailing)
		return append(loops, l)
	}
	collect(n.Children())
	return loops
}
