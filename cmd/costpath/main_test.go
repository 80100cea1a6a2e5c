// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/costpath/services/costpath/telemetry"
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

type cliResult struct {
	Exprs map[string]map[string]string `json:"exprs" yaml:"exprs"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// =============================================================================
// analyze
// =============================================================================

func TestAnalyze_JSON(t *testing.T) {
	traces := writeFile(t, "fib.json", fibDoc)

	stdout, stderr, err := run(t, "analyze", traces)
	require.NoError(t, err, stderr)

	var res cliResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, map[string]string{"0": "C_1"}, res.Exprs["int fib(int)"])
	assert.Contains(t, stderr, "Path summary:")
	assert.Contains(t, stderr, "- int fib(int): 1 paths")
	assert.Contains(t, stderr, "[path_0] (2): 2 traces => C_1")
}

func TestAnalyze_KnownFileYAMLOutput(t *testing.T) {
	traces := writeFile(t, "fib.json", fibDoc)
	known := writeFile(t, "known.yaml", "\"n < 2\": 4\n")
	out := filepath.Join(t.TempDir(), "result.yaml")

	stdout, stderr, err := run(t, "analyze", traces, "--known", known, "--format", "yaml", "-o", out, "-q")
	require.NoError(t, err, stderr)
	assert.Empty(t, stdout)
	assert.NotContains(t, stderr, "Path summary:")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var res struct {
		Exprs map[string]map[int]string `yaml:"exprs"`
	}
	require.NoError(t, yaml.Unmarshal(data, &res))
	assert.Equal(t, "C_1 + 4", res.Exprs["int fib(int)"][0])
}

func TestAnalyze_ConfigFile(t *testing.T) {
	traces := writeFile(t, "fib.json", fibDoc)
	known := writeFile(t, "known.yaml", "\"n < 2\": 7\n")
	cfg := writeFile(t, "costpath.yaml", "knowledge:\n  file: "+known+"\nlogging:\n  level: warn\n")

	stdout, _, err := run(t, "--config", cfg, "analyze", traces, "-q")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"C_1 + 7"`)
}

func TestAnalyze_Errors(t *testing.T) {
	traces := writeFile(t, "fib.json", fibDoc)

	_, _, err := run(t, "analyze")
	assert.Error(t, err)

	_, _, err = run(t, "analyze", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = run(t, "analyze", traces, "--learn")
	assert.ErrorContains(t, err, "--learn requires a knowledge store")

	_, _, err = run(t, "analyze", traces, "--format", "xml", "-q")
	assert.Error(t, err)

	_, _, err = run(t, "analyze", traces, "--metrics-file", filepath.Join(t.TempDir(), "m.prom"), "-q")
	assert.ErrorIs(t, err, telemetry.ErrMetricsDisabled)

	_, _, err = run(t, "--log-level", "loud", "analyze", traces)
	assert.Error(t, err)
}

// =============================================================================
// paths
// =============================================================================

func TestPaths_Dump(t *testing.T) {
	traces := writeFile(t, "fib.json", fibDoc)

	stdout, _, err := run(t, "paths", traces, "--dump")
	require.NoError(t, err)
	assert.Contains(t, stdout, "- int fib(int): 1 paths\n")
	assert.Contains(t, stdout, "  - [path_0] (2): 2 traces\n")
	assert.Contains(t, stdout, "int fib(int)(n=1)\n")
	assert.Contains(t, stdout, "Call(id=1")
}

// =============================================================================
// kb
// =============================================================================

func TestKB_Lifecycle(t *testing.T) {
	store := filepath.Join(t.TempDir(), "kb")
	traces := writeFile(t, "fib.json", fibDoc)

	stdout, _, err := run(t, "kb", "put", "n < 2", "X0 + X0", "--store", store)
	require.NoError(t, err)
	assert.Equal(t, "n < 2 = 2*X0\n", stdout)

	imported := writeFile(t, "known.json", `{"int g(int)": 3}`)
	stdout, _, err = run(t, "kb", "import", imported, "--store", store)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 entries\n", stdout)

	stdout, _, err = run(t, "kb", "list", "--store", store)
	require.NoError(t, err)
	assert.Equal(t, "int g(int) = 3 (import)\nn < 2 = 2*X0 (manual)\n", stdout)

	stdout, _, err = run(t, "analyze", traces, "--store", store, "--learn", "-q")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"C_1 + 2*X0"`)

	stdout, _, err = run(t, "kb", "list", "--store", store, "--format", "json")
	require.NoError(t, err)
	var entries []struct {
		Key    string `json:"key"`
		Expr   string `json:"expr"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "int fib(int)", entries[0].Key)
	assert.Equal(t, "learned", entries[0].Source)

	_, _, err = run(t, "kb", "delete", "n < 2", "--store", store)
	require.NoError(t, err)
	_, _, err = run(t, "kb", "delete", "n < 2", "--store", store)
	assert.Error(t, err)
}

func TestKB_NoStore(t *testing.T) {
	_, _, err := run(t, "kb", "list")
	assert.ErrorIs(t, err, errNoStore)

	_, _, err = run(t, "kb", "put", "k", "X0 +", "--store", t.TempDir())
	assert.Error(t, err)
}

func TestCloseInto(t *testing.T) {
	errFlush := errors.New("flush failed")
	errRun := errors.New("run failed")

	t.Run("close error is reported on success", func(t *testing.T) {
		var err error
		closeInto(&err, func() error { return errFlush })
		assert.ErrorIs(t, err, errFlush)
	})

	t.Run("close error joins the command error", func(t *testing.T) {
		err := errRun
		closeInto(&err, func() error { return errFlush })
		assert.ErrorIs(t, err, errRun)
		assert.ErrorIs(t, err, errFlush)
	})

	t.Run("clean close keeps the command result", func(t *testing.T) {
		var err error
		closeInto(&err, func() error { return nil })
		assert.NoError(t, err)

		err = errRun
		closeInto(&err, func() error { return nil })
		assert.Equal(t, errRun, err)
	})
}
