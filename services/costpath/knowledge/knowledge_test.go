// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/analysis"
	storage "github.com/AleutianAI/costpath/services/costpath/storage/badger"
)

// =============================================================================
// File Tests
// =============================================================================

func TestDecode_YAML(t *testing.T) {
	known, err := Decode(strings.NewReader(`
"int sq(int)": "X0^2"
"x = 1": 3
"y = 2": 0.5
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"int sq(int)": "X0^2",
		"x = 1":       "3",
		"y = 2":       "0.5",
	}, Strings(known))
}

func TestDecode_JSON(t *testing.T) {
	known, err := Decode(strings.NewReader(`{"int f(int)": "2*X0 + 1", "a": 7}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"int f(int)": "2*X0 + 1", "a": "7"}, Strings(known))
}

func TestDecode_Empty(t *testing.T) {
	known, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestDecode_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad expression", `a: "X0 +"`},
		{"list value", `a: [1, 2]`},
		{"bool value", `a: true`},
		{"empty key", `"": 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestValue_Errors(t *testing.T) {
	_, err := Value("", 1)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Value("k", "2 *")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.ErrorIs(t, err, algebra.ErrSyntax)

	_, err = Value("k", struct{}{})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\"int g(int)\": X0 + 4\n"), 0o600))

	known, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "X0 + 4", known["int g(int)"].String())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMerge(t *testing.T) {
	base := map[string]algebra.Expr{"a": algebra.Num(1), "b": algebra.Num(2)}
	over := map[string]algebra.Expr{"b": algebra.Num(3)}

	got := Merge(base, over)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, Strings(got))
	assert.Equal(t, "2", base["b"].String())
}

// =============================================================================
// Store Tests
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Put(ctx, "int f(int)", algebra.MustParse("X0 + X0"), SourceManual, "")
	require.NoError(t, err)
	assert.Equal(t, "2*X0", entry.Expr)

	got, err := s.Get(ctx, "int f(int)")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	require.NoError(t, s.Delete(ctx, "int f(int)"))
	_, err = s.Get(ctx, "int f(int)")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "int f(int)"), ErrNotFound)

	_, err = s.Put(ctx, "", algebra.Num(1), SourceManual, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestStore_ImportListExprs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Import(ctx, map[string]algebra.Expr{
		"b": algebra.MustParse("X0^2"),
		"a": algebra.Num(5),
	}, SourceImport)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Key)
	assert.Equal(t, SourceImport, entries[1].Source)

	exprs, err := s.Exprs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "5", "b": "X0^2"}, Strings(exprs))
}

func TestStore_ListEmpty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Learn(t *testing.T) {
	s := newTestStore(t)
	var logs bytes.Buffer
	s.logger = slog.New(slog.NewJSONHandler(&logs, nil))
	ctx := context.Background()

	res := &analysis.Result{
		RunID: "run-1",
		Exprs: map[string]map[int]string{
			"int one(int)":   {0: "X0 + 1"},
			"int two(int)":   {0: "1", 1: "X0"},
			"int part(int)":  {0: "3"},
			"int const(int)": {0: "C_1"},
		},
		Paths: []analysis.PathInfo{
			{Signature: "int one(int)", PathID: 0, Resolved: true},
			{Signature: "int two(int)", PathID: 0, Resolved: true},
			{Signature: "int two(int)", PathID: 1, Resolved: true},
			{Signature: "int part(int)", PathID: 0, Resolved: true},
			{Signature: "int part(int)", PathID: 1, Resolved: false},
			{Signature: "int const(int)", PathID: 0, Resolved: true},
		},
	}

	learned, err := s.Learn(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, []string{"int const(int)", "int one(int)"}, learned)
	assert.Contains(t, logs.String(), `"size_dependent":1`)

	// Size-dependent results keep the callee's own X0.
	entry, err := s.Get(ctx, "int one(int)")
	require.NoError(t, err)
	assert.Equal(t, "X0 + 1", entry.Expr)
	assert.Equal(t, SourceLearned, entry.Source)
	assert.Equal(t, "run-1", entry.RunID)

	_, err = s.Get(ctx, "int two(int)")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "int part(int)")
	assert.ErrorIs(t, err, ErrNotFound)
}
