// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge holds known cost expressions.
//
// A knowledge base maps a statement description or call signature to a cost
// that is already solved. Values are either numbers or expression strings in
// the algebra syntax. The analysis substitutes these values instead of
// emitting an unknown-cost atom.
//
// Two sources are supported: a YAML or JSON file, and a persistent Store
// backed by BadgerDB that runs can learn into.
package knowledge

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
)

var (
	// ErrNotFound is returned when a key is not in the store.
	ErrNotFound = errors.New("knowledge entry not found")

	// ErrInvalidValue is returned for a value that is neither a number nor
	// a parsable expression.
	ErrInvalidValue = errors.New("invalid knowledge value")

	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("knowledge key is empty")
)

// Value converts a raw knowledge-base value into an expression.
//
// Description:
//
//	Numbers of any Go numeric type become constants. Strings are parsed
//	with algebra.Parse, so "3" and "2*X0 + 1" are both accepted.
//
// Inputs:
//
//	key - The entry key, used in error messages.
//	v - The raw value as decoded from YAML or JSON.
//
// Outputs:
//
//	algebra.Expr - The canonical expression.
//	error - ErrEmptyKey or ErrInvalidValue (wrapping the parse error).
func Value(key string, v any) (algebra.Expr, error) {
	if key == "" {
		return algebra.Expr{}, ErrEmptyKey
	}
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float64:
		f = n
	case float32:
		f = float64(n)
	case interface{ Float64() (float64, error) }:
		x, err := n.Float64()
		if err != nil {
			return algebra.Expr{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
		f = x
	case string:
		e, err := algebra.Parse(n)
		if err != nil {
			return algebra.Expr{}, fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
		}
		return e, nil
	default:
		return algebra.Expr{}, fmt.Errorf("%w: %s: unsupported type %T", ErrInvalidValue, key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return algebra.Expr{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, f)
	}
	return algebra.Num(f), nil
}

// Decode reads a YAML or JSON mapping of known expressions.
func Decode(r io.Reader) (map[string]algebra.Expr, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]algebra.Expr{}, nil
		}
		return nil, fmt.Errorf("decode knowledge file: %w", err)
	}
	return FromMap(raw)
}

// FromMap converts a raw mapping into expressions.
func FromMap(raw map[string]any) (map[string]algebra.Expr, error) {
	out := make(map[string]algebra.Expr, len(raw))
	for _, k := range Keys(raw) {
		e, err := Value(k, raw[k])
		if err != nil {
			return nil, err
		}
		out[k] = e
	}
	return out, nil
}

// LoadFile reads a knowledge file. JSON files are valid YAML, so both
// formats go through the same decoder.
func LoadFile(path string) (map[string]algebra.Expr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge file %s: %w", path, err)
	}
	defer f.Close()

	known, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return known, nil
}

// Merge returns a new map holding base overlaid with each overlay in order.
func Merge(base map[string]algebra.Expr, overlays ...map[string]algebra.Expr) map[string]algebra.Expr {
	out := make(map[string]algebra.Expr, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, o := range overlays {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// Strings renders every expression in known.
func Strings(known map[string]algebra.Expr) map[string]string {
	out := make(map[string]string, len(known))
	for k, v := range known {
		out[k] = v.String()
	}
	return out
}

// Keys returns the keys of m in sorted order.
func Keys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
