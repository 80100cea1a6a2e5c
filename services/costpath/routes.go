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
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/costpath/services/costpath/telemetry"
)

// RegisterRoutes registers the costpath API under rg.
//
// Endpoints:
//
//	GET    /costpath/health
//	POST   /costpath/analyze
//	GET    /costpath/runs/:id
//	GET    /costpath/knowledge
//	PUT    /costpath/knowledge
//	DELETE /costpath/knowledge
//
// Example:
//
//	v1 := router.Group("/v1")
//	costpath.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cp := rg.Group("/costpath")
	{
		cp.GET("/health", handlers.HandleHealth)
		cp.POST("/analyze", handlers.HandleAnalyze)
		cp.GET("/runs/:id", handlers.HandleGetRun)
		cp.GET("/knowledge", handlers.HandleListKnowledge)
		cp.PUT("/knowledge", handlers.HandlePutKnowledge)
		cp.DELETE("/knowledge", handlers.HandleDeleteKnowledge)
	}
}

// NewRouter builds the full gin engine: recovery, OpenTelemetry spans, the
// v1 API, and /metrics when the prometheus exporter is active.
func NewRouter(svc *Service, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	RegisterRoutes(router.Group("/v1"), NewHandlers(svc))
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}
	return router
}
