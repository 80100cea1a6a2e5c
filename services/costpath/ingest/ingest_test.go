// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/costpath/services/costpath/trace"
)

const fibDoc = `{
  "traces": [
    {"id": 1, "type": "CalleeExpr", "sig": "int fib(int)",
     "params": [{"name": "n", "value": "0"}],
     "children": [{"id": 2, "type": "IfThenStmt", "desc": "n < 2", "children": []}]},
    {"id": 1, "type": "CalleeExpr", "sig": "int fib(int)",
     "params": [{"name": "n", "value": "1"}],
     "children": [{"id": 2, "type": "IfThenStmt", "desc": "n < 2", "children": []}]}
  ]
}`

func TestFromJSON(t *testing.T) {
	trees, err := FromJSON([]byte(fibDoc))
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Equal(t, "int fib(int)(n=0)", trees[0].Name)
	assert.Equal(t, "int fib(int)(n=1)", trees[1].Name)
	assert.Equal(t, trace.ID("1"), trees[0].Root.ID())
}

func TestDecode_DocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"not json", `{"traces": [`, ErrInvalidDocument},
		{"array document", `[]`, ErrInvalidDocument},
		{"null document", `null`, ErrInvalidDocument},
		{"missing key", `{"other": []}`, ErrMissingTraces},
		{"not a list", `{"traces": {"id": 1}}`, ErrTracesNotList},
		{"element not object", `{"traces": [42]}`, trace.ErrMalformedTrace},
		{"root not a call", `{"traces": [{"id": 1, "type": "ReturnStmt", "desc": "r"}]}`, trace.ErrMalformedTrace},
		{"nested missing type", `{"traces": [{"id": 1, "type": "CalleeExpr", "sig": "f()", "params": [],
			"children": [{"id": 2, "desc": "x"}]}]}`, trace.ErrMalformedTrace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trees, err := NewLoader("", nil).Decode(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, trees)
		})
	}
}

func TestDecode_CustomKey(t *testing.T) {
	doc := strings.Replace(fibDoc, `"traces"`, `"runs"`, 1)

	_, err := NewLoader("", nil).Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, ErrMissingTraces)

	trees, err := NewLoader("runs", nil).Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Len(t, trees, 2)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFiles_KeepsPathOrder(t *testing.T) {
	dir := t.TempDir()
	single := `{"traces": [{"id": 9, "type": "CalleeExpr", "sig": "void g(int)",
		"params": [{"name": "k", "value": "5"}], "children": []}]}`
	a := writeFile(t, dir, "a.json", single)
	b := writeFile(t, dir, "b.json", fibDoc)

	trees, err := NewLoader("", nil).LoadFiles(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, trees, 3)
	assert.Equal(t, "void g(int)(k=5)", trees[0].Name)
	assert.Equal(t, "int fib(int)(n=0)", trees[1].Name)
	assert.Equal(t, "int fib(int)(n=1)", trees[2].Name)
}

func TestLoadFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", fibDoc)
	bad := writeFile(t, dir, "bad.json", `{"traces": 1}`)

	_, err := NewLoader("", nil).LoadFiles(context.Background(), []string{good, bad})
	require.ErrorIs(t, err, ErrTracesNotList)
	assert.Contains(t, err.Error(), "bad.json")

	_, err = NewLoader("", nil).LoadFiles(context.Background(), []string{filepath.Join(dir, "missing.json")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
