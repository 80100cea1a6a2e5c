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

// ID identifies a static program point. Record ids are opaque; numeric ids
// are kept in their decimal text form.
type ID string

// NodeType is the raw type tag carried by a trace record.
type NodeType string

// Type tags with special meaning to the analysis. Any other tag is accepted
// and treated as an ordinary statement.
const (
	TypeIf       NodeType = "IfThenStmt"
	TypeReturn   NodeType = "ReturnStmt"
	TypeThrow    NodeType = "CXXThrowExpr"
	TypeFor      NodeType = "ForStmt"
	TypeWhile    NodeType = "WhileStmt"
	TypeLoopIter NodeType = "LoopIter"
	TypeCaller   NodeType = "CallerExpr"
	TypeCallee   NodeType = "CalleeExpr"
)

// IsControlFlow reports whether nodes of this type contribute to a
// control-flow fingerprint.
func (t NodeType) IsControlFlow() bool {
	switch t {
	case TypeIf, TypeReturn, TypeThrow, TypeFor, TypeWhile, TypeLoopIter:
		return true
	}
	return false
}

// IsLoop reports whether the type is built as a *Loop.
func (t NodeType) IsLoop() bool {
	return t == TypeFor || t == TypeWhile
}

// IsIterationMarker reports whether the type separates loop iterations.
func (t NodeType) IsIterationMarker() bool {
	return t == TypeLoopIter
}

// IsCall reports whether the type is built as a *Call.
func (t NodeType) IsCall() bool {
	return t == TypeCaller || t == TypeCallee
}

// Param is one (name, value) argument pair of a call.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// CallKey identifies a call context: the signature plus the argument values.
type CallKey string

// KeyOf returns the call key of c, formatted as "sig: (v1, v2)".
func KeyOf(c *Call) CallKey {
	return CallKey(c.sig + ": (" + ArgString(c.params) + ")")
}

// ArgString joins the argument values of params with ", ".
func ArgString(params []Param) string {
	values := make([]string, len(params))
	for i, p := range params {
		values[i] = p.Value
	}
	return strings.Join(values, ", ")
}

// Resolver maps a call key to the root of the trace recorded for it.
//
// The forest built by the analysis package implements Resolver. A nil
// Resolver is valid wherever one is accepted; links then resolve to nothing.
type Resolver interface {
	Resolve(key CallKey) (*Call, bool)
}
