// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry providers used by layerctl.
//
// The layer and document packages instrument themselves through
// otel.Tracer and otel.Meter. Until Init installs real providers those
// calls are no-ops, so libraries embedding the layer tree pay nothing for
// instrumentation they do not export.
//
// # Exporters
//
// Traces go to an OTLP gRPC collector ("otlp"), to stdout ("stdout"), or
// nowhere ("none"). Metrics are exposed for Prometheus scraping
// ("prometheus"), printed periodically ("stdout"), or dropped ("none").
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
//	if h := telemetry.MetricsHandler(); h != nil {
//	    go telemetry.ServeMetrics(ctx, cfg.Telemetry.MetricsAddr, logger)
//	}
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry
