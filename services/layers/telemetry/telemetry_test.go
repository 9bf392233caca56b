// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianLayers/services/layers/config"
)

func telemetryConfig(traces, metrics string) config.TelemetryConfig {
	cfg := config.DefaultConfig().Telemetry
	cfg.TraceExporter = traces
	cfg.MetricExporter = metrics
	return cfg
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := Init(nil, telemetryConfig("none", "none"), "test")
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_Noop(t *testing.T) {
	shutdown, err := Init(context.Background(), telemetryConfig("none", "none"), "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutTraces(t *testing.T) {
	shutdown, err := Init(context.Background(), telemetryConfig("stdout", "none"), "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), telemetryConfig("zipkin", "none"), "test")
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), telemetryConfig("none", "statsd"), "test")
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_PrometheusHandler(t *testing.T) {
	shutdown, err := Init(context.Background(), telemetryConfig("none", "prometheus"), "test")
	require.NoError(t, err)
	defer shutdown(context.Background())

	counter, err := otel.Meter("telemetry_test").Int64Counter("layers_test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	handler := MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "layers_test_events")

	// A second Init uses a fresh registry.
	again, err := Init(context.Background(), telemetryConfig("none", "prometheus"), "test")
	require.NoError(t, err)
	assert.NoError(t, again(context.Background()))
}

func TestServeMetrics(t *testing.T) {
	shutdown, err := Init(context.Background(), telemetryConfig("none", "prometheus"), "test")
	require.NoError(t, err)
	defer shutdown(context.Background())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeMetrics(ctx, addr, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeMetrics did not stop")
	}
}

func TestServeMetrics_NoHandler(t *testing.T) {
	prometheusHandlerMu.Lock()
	saved := prometheusHandler
	prometheusHandler = nil
	prometheusHandlerMu.Unlock()
	defer func() {
		prometheusHandlerMu.Lock()
		prometheusHandler = saved
		prometheusHandlerMu.Unlock()
	}()

	err := ServeMetrics(context.Background(), "127.0.0.1:0", nil)
	assert.ErrorIs(t, err, ErrNoMetricsHandler)
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := StartSpan(context.Background(), "telemetry_test", "failing")
	assert.NotEmpty(t, TraceID(ctx))
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	_, ok := StartSpan(context.Background(), "telemetry_test", "ok")
	SetSpanOK(ok)
	SetSpanOK(nil)
	ok.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	assert.Equal(t, codes.Ok, ended[1].Status().Code)
}
