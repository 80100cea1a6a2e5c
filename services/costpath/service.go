// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package costpath exposes the cost-path analysis over HTTP.
//
// The Service owns the shared solver, the base known expressions and the
// optional knowledge store, and keeps the most recent run results for
// lookup by id. Handlers adapt it to gin.
package costpath

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/analysis"
	"github.com/AleutianAI/costpath/services/costpath/ingest"
	"github.com/AleutianAI/costpath/services/costpath/knowledge"
	"github.com/AleutianAI/costpath/services/costpath/solver"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// ParamIndex is the default size parameter index.
	ParamIndex int

	// TracesKey is the document key holding the trace array.
	TracesKey string

	// Solver configures the shared solver.
	Solver solver.Config

	// MaxRuns bounds the retained results. Oldest runs are evicted first.
	MaxRuns int
}

// DefaultServiceConfig returns the defaults used by serve.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		TracesKey: ingest.DefaultTracesKey,
		Solver:    solver.DefaultConfig(),
		MaxRuns:   100,
	}
}

// Service runs analyses for HTTP requests.
//
// Thread Safety:
//
//	Safe for concurrent use. Every request analyzes its own freshly
//	decoded trees.
type Service struct {
	cfg    ServiceConfig
	loader *ingest.Loader
	solver *solver.Solver
	known  map[string]algebra.Expr
	store  *knowledge.Store
	logger *slog.Logger

	mu    sync.RWMutex
	runs  map[string]*analysis.Result
	order []string
}

// NewService creates a Service.
//
// Inputs:
//
//	cfg - Service configuration.
//	known - Base known expressions, typically from a knowledge file. May be nil.
//	store - Persistent knowledge store. May be nil.
//	logger - If nil, uses slog.Default().
func NewService(cfg ServiceConfig, known map[string]algebra.Expr, store *knowledge.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = DefaultServiceConfig().MaxRuns
	}
	if cfg.TracesKey == "" {
		cfg.TracesKey = ingest.DefaultTracesKey
	}
	return &Service{
		cfg:    cfg,
		loader: ingest.NewLoader(cfg.TracesKey, logger),
		solver: solver.New(cfg.Solver, logger),
		known:  known,
		store:  store,
		logger: logger,
		runs:   make(map[string]*analysis.Result),
	}
}

// Analyze decodes doc and runs the analysis.
//
// Description:
//
//	Known expressions are layered store, then base file, then the
//	request's own map, later layers winning. paramIndex overrides the
//	configured size parameter when non-nil. The result is retained for
//	Run.
//
// Outputs:
//
//	*analysis.Result - The run result, including recoverable failures.
//	error - Ingestion errors, analysis.ErrInconsistentRecursion, or
//	        context errors.
func (s *Service) Analyze(ctx context.Context, doc map[string]any, known map[string]algebra.Expr, paramIndex *int) (*analysis.Result, error) {
	trees, err := s.loader.FromDocument(doc)
	if err != nil {
		return nil, err
	}

	base, err := s.Known(ctx)
	if err != nil {
		return nil, err
	}

	idx := s.cfg.ParamIndex
	if paramIndex != nil {
		idx = *paramIndex
	}
	a := analysis.New(analysis.Options{ParamIndex: idx, Solver: s.solver, Logger: s.logger})
	res, err := a.Run(ctx, trees, knowledge.Merge(base, known))
	if err != nil {
		return nil, err
	}
	s.keep(res)
	return res, nil
}

func (s *Service) keep(res *analysis.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[res.RunID] = res
	s.order = append(s.order, res.RunID)
	for len(s.order) > s.cfg.MaxRuns {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

// Run returns a retained result, or ErrRunNotFound.
func (s *Service) Run(id string) (*analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return res, nil
}

// RunCount returns the number of retained results.
func (s *Service) RunCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// KnowledgeEnabled reports whether a store is configured.
func (s *Service) KnowledgeEnabled() bool { return s.store != nil }

// Known returns the stored expressions overlaid with the base map.
func (s *Service) Known(ctx context.Context) (map[string]algebra.Expr, error) {
	if s.store == nil {
		return knowledge.Merge(s.known), nil
	}
	stored, err := s.store.Exprs(ctx)
	if err != nil {
		return nil, err
	}
	return knowledge.Merge(stored, s.known), nil
}

// ListKnowledge returns the stored entries.
func (s *Service) ListKnowledge(ctx context.Context) ([]knowledge.Entry, error) {
	if s.store == nil {
		return nil, ErrKnowledgeDisabled
	}
	return s.store.List(ctx)
}

// PutKnowledge validates value and stores it under key.
func (s *Service) PutKnowledge(ctx context.Context, key string, value any) (knowledge.Entry, error) {
	if s.store == nil {
		return knowledge.Entry{}, ErrKnowledgeDisabled
	}
	expr, err := knowledge.Value(key, value)
	if err != nil {
		return knowledge.Entry{}, err
	}
	return s.store.Put(ctx, key, expr, knowledge.SourceManual, "")
}

// DeleteKnowledge removes key from the store.
func (s *Service) DeleteKnowledge(ctx context.Context, key string) error {
	if s.store == nil {
		return ErrKnowledgeDisabled
	}
	return s.store.Delete(ctx, key)
}
