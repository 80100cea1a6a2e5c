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
	"strconv"
	"strings"
)

// Render returns the canonical rendering of n and its subtree. Equal nodes
// render identically.
func Render(n Node) string {
	var sb strings.Builder
	render(&sb, n)
	return sb.String()
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return Render(a) == Render(b)
}

func render(sb *strings.Builder, n Node) {
	label(sb, n)
	children := n.Children()
	if len(children) == 0 {
		return
	}
	sb.WriteByte('[')
	for i, child := range children {
		if i > 0 {
			sb.WriteString(", ")
		}
		render(sb, child)
	}
	sb.WriteByte(']')
}

func label(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Loop:
		sb.WriteString("Loop(id=" + string(n.id) + ", type=" + string(n.typ) + ", desc=" + strconv.Quote(n.desc) + ")")
	case *Stmt:
		sb.WriteString("Stmt(id=" + string(n.id) + ", type=" + string(n.typ) + ", desc=" + strconv.Quote(n.desc) + ")")
	case *Call:
		sb.WriteString("Call(id=" + string(n.id) + ", type=" + string(n.typ) + ", sig=" + strconv.Quote(n.sig) + ", params=[")
		for i, p := range n.params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name + "=" + strconv.Quote(p.Value))
		}
		sb.WriteString("])")
	case *Link:
		sb.WriteString("Link(key=" + strconv.Quote(string(n.key)) + ")")
	}
}

// Dump renders n as an indented, one-node-per-line tree for debugging.
func Dump(n Node) string {
	var sb strings.Builder
	dump(&sb, n, "", "")
	return sb.String()
}

func dump(sb *strings.Builder, n Node, prefix, childPrefix string) {
	sb.WriteString(prefix)
	label(sb, n)
	if l, ok := n.(*Loop); ok {
		sb.WriteString(" count=" + strconv.Itoa(l.count))
		if l.trailing != nil {
			sb.WriteString(" trailing=" + strconv.Itoa(len(l.trailing)))
		}
	}
	sb.WriteByte('\n')
	children := n.Children()
	for i, child := range children {
		if i == len(children)-1 {
			dump(sb, child, childPrefix+"└── ", childPrefix+"    ")
		} else {
			dump(sb, child, childPrefix+"├── ", childPrefix+"│   ")
		}
	}
}
