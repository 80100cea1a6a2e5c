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
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one raw trace record as decoded from a trace document: an object
// with "id", "type", variant fields ("desc" or "sig" for statements, "sig"
// and "params" for calls) and an optional "children" array of records.
type Record = map[string]any

type family int

const (
	familyAny family = iota
	familyStmt
	familyLoop
	familyCall
)

func (f family) String() string {
	switch f {
	case familyStmt:
		return "statement"
	case familyLoop:
		return "loop"
	case familyCall:
		return "call"
	default:
		return "any"
	}
}

func familyOf(t NodeType) family {
	switch {
	case t.IsCall():
		return familyCall
	case t.IsLoop():
		return familyLoop
	default:
		return familyStmt
	}
}

// FromRecord builds the node variant selected by the record's type tag.
//
// Description:
//
//	Validates rec and all nested child records, then builds the subtree.
//	Loop nodes are partitioned into iteration blocks as they are built.
//
// Inputs:
//
//	rec - The raw record. Must not be nil.
//
// Outputs:
//
//	Node - The built node (parent is nil).
//	error - A *MalformedTraceError if any record in the tree is invalid.
//	        Nothing is built in that case.
func FromRecord(rec Record) (Node, error) {
	if err := validate(rec, familyAny); err != nil {
		return nil, err
	}
	return build(rec, nil), nil
}

// StmtFromRecord builds a plain statement. Call and loop records are rejected.
func StmtFromRecord(rec Record) (*Stmt, error) {
	if err := validate(rec, familyStmt); err != nil {
		return nil, err
	}
	return build(rec, nil).(*Stmt), nil
}

// LoopFromRecord builds a loop. Records whose type is not a loop type are
// rejected.
func LoopFromRecord(rec Record) (*Loop, error) {
	if err := validate(rec, familyLoop); err != nil {
		return nil, err
	}
	return build(rec, nil).(*Loop), nil
}

// CallFromRecord builds a call. Records whose type is not a call type are
// rejected.
func CallFromRecord(rec Record) (*Call, error) {
	if err := validate(rec, familyCall); err != nil {
		return nil, err
	}
	return build(rec, nil).(*Call), nil
}

func validate(rec Record, want family) error {
	if rec == nil {
		return malformed("", "record", "record is null")
	}
	rawID, ok := rec["id"]
	if !ok {
		return malformed("", "id", "missing")
	}
	id, ok := scalarString(rawID)
	if !ok {
		return malformed("", "id", fmt.Sprintf("unsupported value %T", rawID))
	}

	rawType, ok := rec["type"]
	if !ok {
		return malformed(id, "type", "missing")
	}
	typeName, ok := rawType.(string)
	if !ok || typeName == "" {
		return malformed(id, "type", "must be a non-empty string")
	}
	typ := NodeType(typeName)
	if got := familyOf(typ); want != familyAny && got != want {
		return malformed(id, "type", fmt.Sprintf("type %q is not a %s type", typeName, want))
	}

	switch familyOf(typ) {
	case familyCall:
		if _, ok := rec["sig"].(string); !ok {
			return malformed(id, "sig", "missing or not a string")
		}
		if err := validateParams(id, rec["params"]); err != nil {
			return err
		}
	default:
		if _, ok := description(rec); !ok {
			return malformed(id, "desc", "missing or not a string")
		}
	}

	children, err := childRecords(id, rec)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := validate(child, familyAny); err != nil {
			return err
		}
	}
	return nil
}

func validateParams(id string, raw any) error {
	list, ok := raw.([]any)
	if !ok {
		return malformed(id, "params", "missing or not an array")
	}
	for i, item := range list {
		p, ok := item.(map[string]any)
		if !ok {
			return malformed(id, "params", fmt.Sprintf("element %d is not an object", i))
		}
		if _, ok := p["name"].(string); !ok {
			return malformed(id, "params", fmt.Sprintf("element %d has no name", i))
		}
		if _, ok := scalarString(p["value"]); !ok {
			return malformed(id, "params", fmt.Sprintf("element %d has no scalar value", i))
		}
	}
	return nil
}

func childRecords(id string, rec Record) ([]Record, error) {
	raw, ok := rec["children"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, malformed(id, "children", "not an array")
	}
	children := make([]Record, len(list))
	for i, item := range list {
		child, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(id, "children", fmt.Sprintf("element %d is not an object", i))
		}
		children[i] = child
	}
	return children, nil
}

// description prefers "sig" over "desc", which is how operator nodes record
// the operator they call.
func description(rec Record) (string, bool) {
	if sig, ok := rec["sig"].(string); ok {
		return sig, true
	}
	desc, ok := rec["desc"].(string)
	return desc, ok
}

func scalarString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// build assumes rec has been validated.
func build(rec Record, parent Node) Node {
	id, _ := scalarString(rec["id"])
	typ := NodeType(rec["type"].(string))
	b := base{id: ID(id), typ: typ, parent: parent}

	var n Node
	switch familyOf(typ) {
	case familyCall:
		c := &Call{base: b, sig: rec["sig"].(string), params: buildParams(rec["params"].([]any))}
		c.children = buildChildren(rec, c)
		n = c
	case familyLoop:
		desc, _ := description(rec)
		l := &Loop{Stmt: Stmt{base: b, desc: desc}}
		l.children = buildChildren(rec, l)
		l.partition()
		n = l
	default:
		desc, _ := description(rec)
		s := &Stmt{base: b, desc: desc}
		s.children = buildChildren(rec, s)
		n = s
	}
	return n
}

func buildChildren(rec Record, parent Node) []Node {
	records, _ := childRecords("", rec)
	if len(records) == 0 {
		return nil
	}
	children := make([]Node, len(records))
	for i, child := range records {
		children[i] = build(child, parent)
	}
	return children
}

func buildParams(list []any) []Param {
	params := make([]Param, len(list))
	for i, item := range list {
		p := item.(map[string]any)
		value, _ := scalarString(p["value"])
		params[i] = Param{Name: p["name"].(string), Value: value}
	}
	return params
}
