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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/analysis"
	"github.com/AleutianAI/costpath/services/costpath/solver"
	storage "github.com/AleutianAI/costpath/services/costpath/storage/badger"
)

var tracer = otel.Tracer("costpath.knowledge")

// keyPrefix namespaces knowledge entries in the database.
const keyPrefix = "kb/"

// Entry sources.
const (
	SourceManual  = "manual"
	SourceImport  = "import"
	SourceLearned = "learned"
)

// Entry is one stored known expression.
type Entry struct {
	Key       string    `json:"key" yaml:"key"`
	Expr      string    `json:"expr" yaml:"expr"`
	Source    string    `json:"source" yaml:"source"`
	RunID     string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store persists known expressions in BadgerDB.
//
// Thread Safety:
//
//	Safe for concurrent use. Each operation runs in its own transaction.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store on an open database. The caller keeps ownership
// of db and closes it.
func NewStore(db *storage.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "knowledge")),
		now:    time.Now,
	}
}

func dbKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// Put stores expr under key, replacing any existing entry.
//
// Description:
//
//	The expression is stored in canonical string form together with its
//	source and, for learned entries, the run that produced it.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	key - Statement description or call signature. Must not be empty.
//	expr - The known cost.
//	source - One of SourceManual, SourceImport or SourceLearned.
//	runID - Producing run id, or "".
//
// Outputs:
//
//	Entry - The stored entry.
//	error - ErrEmptyKey, or a storage error.
func (s *Store) Put(ctx context.Context, key string, expr algebra.Expr, source, runID string) (Entry, error) {
	if key == "" {
		return Entry{}, ErrEmptyKey
	}
	entry := Entry{
		Key:       key,
		Expr:      expr.String(),
		Source:    source,
		RunID:     runID,
		UpdatedAt: s.now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("encode knowledge entry %q: %w", key, err)
	}
	if err := s.db.Put(ctx, dbKey(key), data); err != nil {
		return Entry{}, fmt.Errorf("store knowledge entry %q: %w", key, err)
	}
	s.logger.Debug("knowledge entry stored",
		slog.String("key", key),
		slog.String("expr", entry.Expr),
		slog.String("source", source))
	return entry, nil
}

// Get returns the entry for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	data, err := s.db.Get(ctx, dbKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load knowledge entry %q: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode knowledge entry %q: %w", key, err)
	}
	return entry, nil
}

// Delete removes key, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.Delete(ctx, dbKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("delete knowledge entry %q: %w", key, err)
	}
	return nil
}

// List returns every entry ordered by key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.Scan(ctx, []byte(keyPrefix), func(key, value []byte) error {
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decode knowledge entry %q: %w", key, err)
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Exprs returns the stored entries as expressions ready for analysis.
func (s *Store) Exprs(ctx context.Context) (map[string]algebra.Expr, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]algebra.Expr, len(entries))
	for _, e := range entries {
		expr, err := algebra.Parse(e.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: stored %s: %w", ErrInvalidValue, e.Key, err)
		}
		out[e.Key] = expr
	}
	return out, nil
}

// Import stores every entry of known with the given source. Entries are
// written in key order and the count written so far is returned on error.
func (s *Store) Import(ctx context.Context, known map[string]algebra.Expr, source string) (int, error) {
	n := 0
	for _, k := range Keys(known) {
		if _, err := s.Put(ctx, k, known[k], source, ""); err != nil {
			return n, err
		}
		n++
	}
	s.logger.Info("knowledge imported", slog.Int("entries", n), slog.String("source", source))
	return n, nil
}

// Learn stores the expression of every signature the run resolved to
// exactly one path.
//
// Description:
//
//	A signature with several paths has no single cost, and a signature
//	with a failed path is incomplete, so both are skipped. Learned
//	entries overwrite existing ones.
//
//	Expressions are stored as solved, in the callee's own size symbol X0.
//	A later run substitutes them for caller-side calls without rebinding
//	X0 to the caller's argument, so a learned entry that mentions X0 is
//	only valid where the caller's size parameter is the same quantity as
//	the callee's. Such entries are counted in the log as size_dependent.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	res - A completed analysis result.
//
// Outputs:
//
//	[]string - The learned keys in sorted order.
//	error - A storage error. Keys stored before the error stay stored.
func (s *Store) Learn(ctx context.Context, res *analysis.Result) ([]string, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Learn")
	defer span.End()

	paths := make(map[string]int)
	failed := make(map[string]bool)
	for _, p := range res.Paths {
		paths[p.Signature]++
		if !p.Resolved {
			failed[p.Signature] = true
		}
	}

	learned := []string{}
	sizeDependent := 0
	for _, sig := range Keys(res.Exprs) {
		byPath := res.Exprs[sig]
		if len(byPath) != 1 || paths[sig] > 1 || failed[sig] {
			continue
		}
		for _, raw := range byPath {
			expr, err := algebra.Parse(raw)
			if err != nil {
				return learned, fmt.Errorf("%w: result %s: %w", ErrInvalidValue, sig, err)
			}
			if _, err := s.Put(ctx, sig, expr, SourceLearned, res.RunID); err != nil {
				return learned, err
			}
			if slices.Contains(expr.Symbols(), solver.Var) {
				sizeDependent++
			}
		}
		learned = append(learned, sig)
	}

	span.SetAttributes(attribute.Int("knowledge.learned", len(learned)))
	s.logger.Info("knowledge learned",
		slog.String("run_id", res.RunID),
		slog.Int("entries", len(learned)),
		slog.Int("size_dependent", sizeDependent))
	return learned, nil
}
