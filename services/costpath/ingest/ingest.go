// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest reads trace documents and turns them into trace trees.
//
// A trace document is a JSON object whose traces key (default "traces")
// holds an array of root call records:
//
//	{"traces": [{"id": 1, "type": "CalleeExpr", "sig": "int fib(int)",
//	             "params": [{"name": "n", "value": "2"}], "children": [...]}]}
//
// Shape problems at the document level are reported with ErrMissingTraces,
// ErrTracesNotList or ErrInvalidDocument. Problems inside a record are
// *trace.MalformedTraceError values.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/costpath/services/costpath/trace"
)

// DefaultTracesKey is the top-level key holding the trace array.
const DefaultTracesKey = "traces"

var (
	// ErrInvalidDocument is returned when the input is not a JSON object.
	ErrInvalidDocument = errors.New("invalid trace document")

	// ErrMissingTraces is returned when the traces key is absent.
	ErrMissingTraces = errors.New("trace document has no traces key")

	// ErrTracesNotList is returned when the traces key does not hold an array.
	ErrTracesNotList = errors.New("traces value is not a list")
)

// Loader decodes trace documents.
//
// Thread Safety:
//
//	Loader is immutable after construction and safe for concurrent use.
type Loader struct {
	tracesKey string
	logger    *slog.Logger
}

// NewLoader creates a Loader.
//
// Inputs:
//
//	tracesKey - Top-level key of the trace array. Empty uses DefaultTracesKey.
//	logger - Logger for load progress. If nil, uses slog.Default().
//
// Outputs:
//
//	*Loader - The configured loader.
func NewLoader(tracesKey string, logger *slog.Logger) *Loader {
	if tracesKey == "" {
		tracesKey = DefaultTracesKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{tracesKey: tracesKey, logger: logger}
}

// FromJSON decodes a trace document using the default traces key.
func FromJSON(data []byte) ([]*trace.Tree, error) {
	return NewLoader("", nil).Decode(bytes.NewReader(data))
}

// Decode reads one trace document from r.
//
// Description:
//
//	Numbers are decoded as json.Number so record ids keep their exact
//	decimal text. Every element of the trace array must be a call record;
//	the whole document is rejected on the first malformed record.
//
// Inputs:
//
//	r - The document source.
//
// Outputs:
//
//	[]*trace.Tree - One tree per array element, in document order.
//	error - Document shape errors or a *trace.MalformedTraceError.
func (l *Loader) Decode(r io.Reader) ([]*trace.Tree, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidDocument)
	}
	return l.FromDocument(doc)
}

// FromDocument builds trees from an already decoded document.
func (l *Loader) FromDocument(doc map[string]any) ([]*trace.Tree, error) {
	raw, ok := doc[l.tracesKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingTraces, l.tracesKey)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q holds %T", ErrTracesNotList, l.tracesKey, raw)
	}

	trees := make([]*trace.Tree, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, &trace.MalformedTraceError{
				Field:  l.tracesKey,
				Reason: fmt.Sprintf("element %d is %T, not an object", i, item),
			}
		}
		tree, err := trace.NewTree(rec)
		if err != nil {
			return nil, fmt.Errorf("trace %d: %w", i, err)
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

// LoadFile reads the trace document at path.
func (l *Loader) LoadFile(path string) ([]*trace.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer f.Close()

	trees, err := l.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.logger.Debug("ingest: trace file loaded",
		slog.String("path", path),
		slog.Int("trees", len(trees)),
	)
	return trees, nil
}

// LoadFiles reads several trace documents concurrently.
//
// Description:
//
//	Files are decoded in parallel, bounded by GOMAXPROCS. The returned trees
//	keep the order of paths, then document order within each file, so the
//	downstream analysis sees the same forest regardless of scheduling.
//
// Inputs:
//
//	ctx - Cancels pending reads. Must not be nil.
//	paths - Files to read.
//
// Outputs:
//
//	[]*trace.Tree - All trees, in path order.
//	error - The first read or decode error.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) ([]*trace.Tree, error) {
	perFile := make([][]*trace.Tree, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			trees, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			perFile[i] = trees
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*trace.Tree
	for _, trees := range perFile {
		all = append(all, trees...)
	}
	l.logger.Info("ingest: traces loaded",
		slog.Int("files", len(paths)),
		slog.Int("trees", len(all)),
	)
	return all, nil
}
