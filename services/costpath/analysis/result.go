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

import "time"

// Failure kinds.
const (
	KindUnresolvedLoop = "unresolved_loop"
	KindUnresolvedPath = "unresolved_path"
)

// Result is the outcome of one analysis run.
//
// Exprs maps signature → path id → expression. Contexts maps signature →
// argument string → path id, covering only trees of resolved paths.
type Result struct {
	RunID    string                    `json:"run_id" yaml:"run_id"`
	Exprs    map[string]map[int]string `json:"exprs" yaml:"exprs"`
	Contexts map[string]map[string]int `json:"contexts" yaml:"contexts"`
	Failures []Failure                 `json:"failures" yaml:"failures"`
	Paths    []PathInfo                `json:"paths" yaml:"paths"`
	Summary  Summary                   `json:"summary" yaml:"summary"`
}

// Failure records a skipped path.
type Failure struct {
	Signature string `json:"signature" yaml:"signature"`
	PathID    int    `json:"path_id" yaml:"path_id"`
	Kind      string `json:"kind" yaml:"kind"`
	Message   string `json:"message" yaml:"message"`
}

// PathInfo describes one path group.
type PathInfo struct {
	Signature   string   `json:"signature" yaml:"signature"`
	PathID      int      `json:"path_id" yaml:"path_id"`
	Fingerprint []string `json:"fingerprint" yaml:"fingerprint"`
	Trees       []string `json:"trees" yaml:"trees"`
	Resolved    bool     `json:"resolved" yaml:"resolved"`
	Irregular   bool     `json:"irregular,omitempty" yaml:"irregular,omitempty"`
}

// Summary holds run counters.
type Summary struct {
	Trees      int           `json:"trees" yaml:"trees"`
	Links      int           `json:"links" yaml:"links"`
	Signatures int           `json:"signatures" yaml:"signatures"`
	Paths      int           `json:"paths" yaml:"paths"`
	Resolved   int           `json:"resolved" yaml:"resolved"`
	Failed     int           `json:"failed" yaml:"failed"`
	Duration   time.Duration `json:"duration_ns" yaml:"duration"`
}

func newResult(runID string) *Result {
	return &Result{
		RunID:    runID,
		Exprs:    make(map[string]map[int]string),
		Contexts: make(map[string]map[string]int),
		Failures: []Failure{},
		Paths:    []PathInfo{},
	}
}

func (r *Result) resolve(g *PathGroup, expr string) {
	exprs, ok := r.Exprs[g.Signature]
	if !ok {
		exprs = make(map[int]string)
		r.Exprs[g.Signature] = exprs
	}
	exprs[g.PathID] = expr

	ctxs, ok := r.Contexts[g.Signature]
	if !ok {
		ctxs = make(map[string]int)
		r.Contexts[g.Signature] = ctxs
	}
	for _, t := range g.Trees {
		ctxs[t.Args()] = g.PathID
	}
	r.Summary.Resolved++
}

func (r *Result) fail(g *PathGroup, kind string, err error) {
	r.Failures = append(r.Failures, Failure{
		Signature: g.Signature,
		PathID:    g.PathID,
		Kind:      kind,
		Message:   err.Error(),
	})
	r.Summary.Failed++
}
