// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up OpenTelemetry tracing and metrics for costpath.
//
// The analysis packages create spans and instruments through the global
// otel.Tracer and otel.Meter, so they work unchanged whether telemetry is
// initialized or not. Init installs real providers:
//
//   - Traces: "stdout" (pretty-printed), "otlp" (gRPC) or "none".
//   - Metrics: "prometheus" (scraped via MetricsHandler or written as a
//     textfile via WriteMetricsFile), "stdout" or "none".
//
// Batch runs of the CLI typically use the prometheus exporter with a
// metrics file for node_exporter's textfile collector.
package telemetry
