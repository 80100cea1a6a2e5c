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

import "slices"

// partition segments the loop's raw children into iteration blocks.
//
// The children of a loop look like
//
//	pre... MARK body... pre... MARK body... pre...
//
// where MARK is an iteration marker and pre are the nodes evaluated before
// every iteration (typically the loop condition). An iteration block closes
// at the next marker or at the next node equal to a pre-body node. All
// blocks sharing one fingerprint give Count = len(blocks). Otherwise a last
// block whose fingerprint differs from the main block becomes the trailing
// block and Count = len(blocks) - 1; if it matches the main block there is no
// trailing block, Count = len(blocks) and the loop is flagged irregular.
func (l *Loop) partition() {
	if len(l.children) == 0 {
		return
	}

	var pre, post []Node
	inPre := true
	for _, child := range l.children {
		if child.IsIterationMarker() {
			if !inPre {
				break
			}
			inPre = false
			continue
		}
		if inPre {
			pre = append(pre, child)
		} else {
			post = append(post, child)
		}
	}

	// No marker at all: everything is pre-body and the loop never iterated.
	if inPre {
		l.preBody = pre
		return
	}

	preKeys := make(map[string]struct{}, len(pre))
	for _, p := range pre {
		preKeys[Render(p)] = struct{}{}
	}
	isPre := func(n Node) bool {
		if len(preKeys) == 0 {
			return false
		}
		_, ok := preKeys[Render(n)]
		return ok
	}
	if len(pre) > 0 && len(post) > 0 {
		post = slices.DeleteFunc(post, isPre)
	}
	l.preBody = pre
	l.postBody = post

	var blocks [][]Node
	var current []Node
	inPre = true
	for _, child := range l.children {
		if !inPre && (child.IsIterationMarker() || isPre(child)) {
			blocks = append(blocks, current)
			current = nil
			inPre = true
		}
		if child.IsIterationMarker() {
			inPre = false
		}
		current = append(current, child)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	l.blocks = blocks
	l.main = blocks[0]

	var shapes [][]ID
	var last []ID
	deviating := -1
	for i, block := range blocks {
		shape := blockFingerprint(block)
		last = shape
		if !slices.ContainsFunc(shapes, func(s []ID) bool { return slices.Equal(s, shape) }) {
			shapes = append(shapes, shape)
			if len(shapes) == 2 {
				deviating = i
			}
		}
	}

	if len(shapes) == 1 {
		l.count = len(blocks)
		return
	}
	l.irregular = len(shapes) > 2 || deviating != len(blocks)-1
	// A trailing block is only split off when it differs from the main block.
	if slices.Equal(last, shapes[0]) {
		l.count = len(blocks)
		return
	}
	l.count = len(blocks) - 1
	l.trailing = blocks[len(blocks)-1]
}

// blockFingerprint returns the control-flow trail of an iteration block with
// immediately repeated entries collapsed.
func blockFingerprint(block []Node) []ID {
	var ids []ID
	for _, n := range block {
		ids = append(ids, ControlFlowTrail(n, nil)...)
	}
	return slices.Compact(ids)
}
