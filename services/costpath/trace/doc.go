// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trace models the per-call execution traces that costpath analyzes.
//
// A trace is a tree rooted at a callee-side call. Every node is one of a
// closed set of variants:
//
//   - *Stmt: a plain statement (branch, return, throw, operator, ...)
//   - *Loop: a loop statement whose children are segmented into iteration
//     blocks at construction time
//   - *Call: a caller-side or callee-side call with its signature and arguments
//   - *Link: a non-owning reference to another trace root, created by the
//     recursive-call linker in the analysis package
//
// Callers dispatch on the variant with a type switch. There is no extension
// point: the variant set is fixed.
//
// # Identity and Equality
//
// Node IDs identify static program points, so the same statement executed in
// two different traces carries the same ID. Two nodes are equal when their
// canonical renderings (see Render) are equal, which compares the whole
// subtree rather than pointer identity.
//
// # Ownership
//
// A node owns its children. A *Link owns nothing: it names a call key that a
// Resolver maps back to a root owned by the forest, keeping ownership acyclic.
//
// # Thread Safety
//
// Nodes are not safe for concurrent mutation. The analysis pipeline is single
// threaded; read-only use from several goroutines is safe once linking and
// loop annotation have finished.
package trace
