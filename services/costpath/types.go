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
	"errors"

	"github.com/AleutianAI/costpath/services/costpath/knowledge"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

var (
	// ErrRunNotFound is returned for an unknown or evicted run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrKnowledgeDisabled is returned by knowledge operations when the
	// service has no store.
	ErrKnowledgeDisabled = errors.New("knowledge store is not configured")

	// ErrInvalidRequest is returned for a request body that cannot be used.
	ErrInvalidRequest = errors.New("invalid request")
)

// HealthResponse is the response for GET /v1/costpath/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Runs      int    `json:"runs"`
	Knowledge bool   `json:"knowledge"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// KnowledgePutRequest is the body of PUT /v1/costpath/knowledge. Value is a
// number or an expression string.
type KnowledgePutRequest struct {
	Key   string `json:"key" validate:"required"`
	Value any    `json:"value"`
}

// KnowledgeDeleteRequest is the body of DELETE /v1/costpath/knowledge.
type KnowledgeDeleteRequest struct {
	Key string `json:"key" validate:"required"`
}

// KnowledgeListResponse is the response for GET /v1/costpath/knowledge.
type KnowledgeListResponse struct {
	Entries []knowledge.Entry `json:"entries"`
	Count   int               `json:"count"`
}

// analyzeOptions holds the non-document fields of an analyze request.
type analyzeOptions struct {
	ParamIndex *int `validate:"omitempty,gte=0"`
}
