// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for layer tree operations.
var (
	tracer = otel.Tracer("aleutian.layers")
	meter  = otel.Meter("aleutian.layers")
)

// Metrics for layer tree operations.
var (
	parseLatency     metric.Float64Histogram
	parseFailures    metric.Int64Counter
	layersCreated    metric.Int64Counter
	layersRetired    metric.Int64Counter
	invalidatedBytes metric.Int64Histogram
	queryMatches     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"layers_parse_duration_seconds",
			metric.WithDescription("Duration of one layer's incremental parse"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseFailures, err = meter.Int64Counter(
			"layers_parse_failures_total",
			metric.WithDescription("Parses that produced no tree and kept the previous state"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		layersCreated, err = meter.Int64Counter(
			"layers_created_total",
			metric.WithDescription("Injected layers created"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		layersRetired, err = meter.Int64Counter(
			"layers_retired_total",
			metric.WithDescription("Injected layers retired"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		invalidatedBytes, err = meter.Int64Histogram(
			"layers_invalidated_bytes",
			metric.WithDescription("Bytes invalidated by one layer parse"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryMatches, err = meter.Int64Counter(
			"layers_query_matches_total",
			metric.WithDescription("Matches produced by layered queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startParseSpan starts a span for one layer parse.
func startParseSpan(ctx context.Context, language string, depth int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "layer.Parse",
		trace.WithAttributes(
			attribute.String("layer.language", language),
			attribute.Int("layer.depth", depth),
		),
	)
}

// recordParseMetrics records the outcome of one layer parse.
func recordParseMetrics(ctx context.Context, language string, duration time.Duration, invalidated uint, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("language", language))
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	if !ok {
		parseFailures.Add(ctx, 1, attrs)
		return
	}
	invalidatedBytes.Record(ctx, int64(invalidated), attrs)
}

// recordLayerCreated counts a new injected layer.
func recordLayerCreated(ctx context.Context, language string) {
	if err := initMetrics(); err != nil {
		return
	}
	layersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

// recordLayerRetired counts a retired injected layer.
func recordLayerRetired(ctx context.Context, language string) {
	if err := initMetrics(); err != nil {
		return
	}
	layersRetired.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

// recordQueryMatch counts one produced match.
func recordQueryMatch(language string, kind QueryKind) {
	if err := initMetrics(); err != nil {
		return
	}
	queryMatches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("kind", string(kind)),
	))
}
