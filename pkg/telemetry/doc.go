// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry tracing and metrics for the
// assistant.
//
// OTel APIs are used directly; backends are chosen by configuration.
// Traces default to OTLP over gRPC, metrics to a Prometheus exporter whose
// registry is served from the server's /metrics route.
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(ctx)
//
// Environment:
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default otlp)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default prometheus)
//   - ASSISTANT_ENV: deployment environment (default development)
package telemetry
