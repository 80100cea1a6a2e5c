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
	"github.com/AleutianAI/costpath/services/costpath/trace"
)

// Forest is the set of trees of one analysis run, indexed by root call key.
//
// Description:
//
//	The index maps each call key to the first tree whose root has that key.
//	Links created by Link hold only a call key and are resolved through the
//	Forest, so trees never point into each other.
//
// Thread Safety:
//
//	Not safe for concurrent use. Link mutates the trees.
type Forest struct {
	trees []*trace.Tree
	index map[trace.CallKey]int
}

// NewForest indexes trees by root call key.
//
// Inputs:
//
//	trees - The run's trees. The Forest takes ownership.
//
// Outputs:
//
//	*Forest - The indexed forest.
//	error - *InconsistentRecursionError if two roots share a key but differ.
func NewForest(trees []*trace.Tree) (*Forest, error) {
	f := &Forest{
		trees: trees,
		index: make(map[trace.CallKey]int, len(trees)),
	}
	for i, t := range trees {
		key := t.Key()
		j, ok := f.index[key]
		if !ok {
			f.index[key] = i
			continue
		}
		if !trace.Equal(trees[j].Root, t.Root) {
			return nil, &InconsistentRecursionError{Key: key, First: trees[j].Name, Second: t.Name}
		}
	}
	return f, nil
}

// Trees returns the forest's trees in input order.
func (f *Forest) Trees() []*trace.Tree { return f.trees }

// Resolve implements trace.Resolver.
func (f *Forest) Resolve(key trace.CallKey) (*trace.Call, bool) {
	i, ok := f.index[key]
	if !ok {
		return nil, false
	}
	return f.trees[i].Root, true
}

// Link replaces callee calls that re-enter a traced root with links to it.
//
// Description:
//
//	Every node below each root is visited; a root's own direct children are
//	left alone. A callee child whose call key is in the index becomes a
//	*trace.Link. Running Link again changes nothing, since links have no
//	children and are not calls.
//
// Outputs:
//
//	int - The number of links created.
func (f *Forest) Link() int {
	links := 0
	replace := func(n trace.Node) trace.Node {
		c, ok := n.(*trace.Call)
		if !ok || !c.IsCallee() {
			return n
		}
		if _, known := f.index[c.Key()]; !known {
			return n
		}
		links++
		return trace.NewLink(c)
	}

	for _, t := range f.trees {
		root := t.Root
		trace.Walk(root, func(n trace.Node) bool {
			if n != trace.Node(root) {
				trace.ReplaceChildren(n, replace)
			}
			return true
		})
	}
	return links
}
