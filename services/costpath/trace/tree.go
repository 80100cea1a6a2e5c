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

import "strings"

// Tree is the trace of one captured call: a named root call.
type Tree struct {
	// Name is "sig(name1=v1, name2=v2)".
	Name string

	// Root is the traced call. It owns the whole tree.
	Root *Call
}

// NewTree builds a tree from a raw root record, which must be a call.
func NewTree(rec Record) (*Tree, error) {
	root, err := CallFromRecord(rec)
	if err != nil {
		return nil, err
	}
	return TreeOf(root), nil
}

// TreeOf wraps an already built root call.
func TreeOf(root *Call) *Tree {
	return &Tree{Name: treeName(root), Root: root}
}

func treeName(root *Call) string {
	args := make([]string, len(root.params))
	for i, p := range root.params {
		args[i] = p.Name + "=" + p.Value
	}
	return root.sig + "(" + strings.Join(args, ", ") + ")"
}

// Signature returns the root call's signature.
func (t *Tree) Signature() string { return t.Root.sig }

// Key returns the root call's key.
func (t *Tree) Key() CallKey { return KeyOf(t.Root) }

// Args returns the root call's argument values joined by ", ".
func (t *Tree) Args() string { return ArgString(t.Root.params) }

// ControlFlowTrail returns the tree's fingerprint.
func (t *Tree) ControlFlowTrail(r Resolver) []ID { return ControlFlowTrail(t.Root, r) }

// LoopNodes returns all loops in the tree, post-order.
func (t *Tree) LoopNodes() []*Loop { return LoopNodes(t.Root) }

// HasLoop reports whether the tree contains at least one loop.
func (t *Tree) HasLoop() bool { return len(t.LoopNodes()) > 0 }

// String returns the tree name.
func (t *Tree) String() string { return t.Name }
