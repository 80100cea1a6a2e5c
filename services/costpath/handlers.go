// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package costpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/costpath/services/costpath/algebra"
	"github.com/AleutianAI/costpath/services/costpath/analysis"
	"github.com/AleutianAI/costpath/services/costpath/ingest"
	"github.com/AleutianAI/costpath/services/costpath/knowledge"
	"github.com/AleutianAI/costpath/services/costpath/telemetry"
	"github.com/AleutianAI/costpath/services/costpath/trace"
)

var validate = validator.New()

// Handlers serves the costpath HTTP API.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers for svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, logger: svc.logger}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	requestID := getOrCreateRequestID(c)
	return telemetry.LoggerWithTrace(c.Request.Context(), h.logger).
		With(slog.String("request_id", requestID), slog.String("handler", handler))
}

// HandleHealth handles GET /v1/costpath/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   ServiceVersion,
		Runs:      h.svc.RunCount(),
		Knowledge: h.svc.KnowledgeEnabled(),
	})
}

// HandleAnalyze handles POST /v1/costpath/analyze.
//
// Description:
//
//	The body is a trace document. Two optional top-level keys are read
//	and removed before ingestion: "known", a map of known expressions,
//	and "param_index", the size parameter index.
//
// Response:
//
//	200 OK: analysis.Result
//	400 Bad Request: Malformed body, document or known map
//	422 Unprocessable Entity: Inconsistent recursive context
//	500 Internal Server Error: Other failures
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAnalyze")

	doc, known, opts, err := decodeAnalyzeRequest(c)
	if err != nil {
		logger.Warn("invalid analyze request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	res, err := h.svc.Analyze(c.Request.Context(), doc, known, opts.ParamIndex)
	if err != nil {
		status, code := http.StatusInternalServerError, "ANALYSIS_FAILED"
		switch {
		case errors.Is(err, ingest.ErrMissingTraces),
			errors.Is(err, ingest.ErrTracesNotList),
			errors.Is(err, trace.ErrMalformedTrace):
			status, code = http.StatusBadRequest, "INVALID_DOCUMENT"
		case errors.Is(err, analysis.ErrInconsistentRecursion):
			status, code = http.StatusUnprocessableEntity, "INCONSISTENT_RECURSION"
		}
		logger.Error("analysis failed", slog.String("error", err.Error()))
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("analysis complete",
		slog.String("run_id", res.RunID),
		slog.Int("resolved", res.Summary.Resolved),
		slog.Int("failed", res.Summary.Failed))
	c.JSON(http.StatusOK, res)
}

func decodeAnalyzeRequest(c *gin.Context) (map[string]any, map[string]algebra.Expr, analyzeOptions, error) {
	var opts analyzeOptions

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if doc == nil {
		return nil, nil, opts, fmt.Errorf("%w: body is null", ErrInvalidRequest)
	}

	var known map[string]algebra.Expr
	if raw, ok := doc["known"]; ok {
		delete(doc, "known")
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, opts, fmt.Errorf("%w: known must be an object", ErrInvalidRequest)
		}
		var err error
		if known, err = knowledge.FromMap(m); err != nil {
			return nil, nil, opts, err
		}
	}

	if raw, ok := doc["param_index"]; ok {
		delete(doc, "param_index")
		n, ok := raw.(json.Number)
		if !ok {
			return nil, nil, opts, fmt.Errorf("%w: param_index must be a number", ErrInvalidRequest)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, nil, opts, fmt.Errorf("%w: param_index: %v", ErrInvalidRequest, err)
		}
		idx := int(i)
		opts.ParamIndex = &idx
	}
	if err := validate.Struct(opts); err != nil {
		return nil, nil, opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return doc, known, opts, nil
}

// HandleGetRun handles GET /v1/costpath/runs/:id.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	res, err := h.svc.Run(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleListKnowledge handles GET /v1/costpath/knowledge.
func (h *Handlers) HandleListKnowledge(c *gin.Context) {
	entries, err := h.svc.ListKnowledge(c.Request.Context())
	if err != nil {
		h.knowledgeError(c, "HandleListKnowledge", err)
		return
	}
	c.JSON(http.StatusOK, KnowledgeListResponse{Entries: entries, Count: len(entries)})
}

// HandlePutKnowledge handles PUT /v1/costpath/knowledge.
func (h *Handlers) HandlePutKnowledge(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePutKnowledge")

	var req KnowledgePutRequest
	if err := bindAndValidate(c, &req); err != nil {
		logger.Warn("invalid knowledge request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST", Details: err.Error()})
		return
	}

	entry, err := h.svc.PutKnowledge(c.Request.Context(), req.Key, req.Value)
	if err != nil {
		h.knowledgeError(c, "HandlePutKnowledge", err)
		return
	}
	logger.Info("knowledge stored", slog.String("key", entry.Key), slog.String("expr", entry.Expr))
	c.JSON(http.StatusOK, entry)
}

// HandleDeleteKnowledge handles DELETE /v1/costpath/knowledge.
func (h *Handlers) HandleDeleteKnowledge(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteKnowledge")

	var req KnowledgeDeleteRequest
	if err := bindAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST", Details: err.Error()})
		return
	}
	if err := h.svc.DeleteKnowledge(c.Request.Context(), req.Key); err != nil {
		h.knowledgeError(c, "HandleDeleteKnowledge", err)
		return
	}
	logger.Info("knowledge deleted", slog.String("key", req.Key))
	c.Status(http.StatusNoContent)
}

func (h *Handlers) knowledgeError(c *gin.Context, handler string, err error) {
	status, code := http.StatusInternalServerError, "KNOWLEDGE_FAILED"
	switch {
	case errors.Is(err, ErrKnowledgeDisabled):
		status, code = http.StatusServiceUnavailable, "KNOWLEDGE_DISABLED"
	case errors.Is(err, knowledge.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, knowledge.ErrInvalidValue), errors.Is(err, knowledge.ErrEmptyKey):
		status, code = http.StatusBadRequest, "INVALID_VALUE"
	}
	if status == http.StatusInternalServerError {
		h.requestLogger(c, handler).Error("knowledge operation failed", slog.String("error", err.Error()))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func bindAndValidate(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return err
	}
	return validate.Struct(req)
}

// getOrCreateRequestID reads X-Request-ID or assigns a new one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
