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
	"strings"

	"github.com/AleutianAI/costpath/services/costpath/trace"
)

// PathGroup is the set of trees of one signature sharing a control-flow
// fingerprint.
type PathGroup struct {
	Signature   string
	PathID      int
	Fingerprint []trace.ID
	Trees       []*trace.Tree
}

// PathSet holds the path groups of a run, by signature, in first-seen order.
type PathSet struct {
	signatures []string
	groups     map[string][]*PathGroup
	byPrint    map[string]map[string]*PathGroup
}

// Partition groups trees by root signature and fingerprint.
//
// Description:
//
//	Path ids are assigned per signature from 0 in the order distinct
//	fingerprints are first seen, so the same forest in the same order always
//	yields the same ids. Fingerprints are compared as exact sequences.
//
// Inputs:
//
//	trees - Trees to group, typically after linking.
//	r - Resolves links while computing fingerprints. May be nil.
//
// Outputs:
//
//	*PathSet - The grouping.
func Partition(trees []*trace.Tree, r trace.Resolver) *PathSet {
	ps := &PathSet{
		groups:  make(map[string][]*PathGroup),
		byPrint: make(map[string]map[string]*PathGroup),
	}
	for _, t := range trees {
		sig := t.Signature()
		fp := t.ControlFlowTrail(r)
		key := fingerprintKey(fp)

		prints, ok := ps.byPrint[sig]
		if !ok {
			prints = make(map[string]*PathGroup)
			ps.byPrint[sig] = prints
			ps.signatures = append(ps.signatures, sig)
		}
		g, ok := prints[key]
		if !ok {
			g = &PathGroup{Signature: sig, PathID: len(prints), Fingerprint: fp}
			prints[key] = g
			ps.groups[sig] = append(ps.groups[sig], g)
		}
		g.Trees = append(g.Trees, t)
	}
	return ps
}

// fingerprintKey returns a map key for fp.
func fingerprintKey(fp []trace.ID) string {
	parts := make([]string, len(fp))
	for i, id := range fp {
		parts[i] = string(id)
	}
	return strings.Join(parts, "\x00")
}

// Signatures returns the signatures in first-seen order.
func (ps *PathSet) Signatures() []string { return ps.signatures }

// Groups returns the path groups of sig ordered by path id.
func (ps *PathSet) Groups(sig string) []*PathGroup { return ps.groups[sig] }

// All returns every group, by signature then path id.
func (ps *PathSet) All() []*PathGroup {
	var all []*PathGroup
	for _, sig := range ps.signatures {
		all = append(all, ps.groups[sig]...)
	}
	return all
}

// Len returns the total number of path groups.
func (ps *PathSet) Len() int {
	n := 0
	for _, gs := range ps.groups {
		n += len(gs)
	}
	return n
}

// Info describes g. Resolved is left false.
func (g *PathGroup) Info() PathInfo {
	info := PathInfo{
		Signature:   g.Signature,
		PathID:      g.PathID,
		Fingerprint: make([]string, len(g.Fingerprint)),
		Trees:       make([]string, len(g.Trees)),
	}
	for i, id := range g.Fingerprint {
		info.Fingerprint[i] = string(id)
	}
	for i, t := range g.Trees {
		info.Trees[i] = t.Name
		for _, l := range t.LoopNodes() {
			if l.Irregular() {
				info.Irregular = true
			}
		}
	}
	return info
}

// Paths links trees and partitions them without generalizing. It is the
// first half of Analyzer.Run, used to inspect path structure.
func Paths(trees []*trace.Tree) (*PathSet, error) {
	forest, err := NewForest(trees)
	if err != nil {
		return nil, err
	}
	forest.Link()
	return Partition(trees, forest), nil
}
