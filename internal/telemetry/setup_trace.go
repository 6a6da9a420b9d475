// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry sets up observability for the server.
// This file initializes the OpenTelemetry SDK and exports traces and metrics
// to Cloud Trace and Cloud Monitoring.
//
// Logic Flow:
//  1. The autoprop propagator is always installed, so incoming trace headers
//     are honored even when nothing is exported.
//  2. Without telemetry.enabled and a project id the global no-op providers
//     stay in place and the returned shutdown does nothing.
//  3. Otherwise a resource is detected (GCP detector, SDK info, service name)
//     and trace and metric providers backed by the GCP exporters are
//     registered globally.
package telemetry

import (
	"context"
	"errors"
	"log/slog"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
)

// ExportEnabled reports whether SetupOpenTelemetry will install exporters.
func ExportEnabled(config *cloud.Config) bool {
	return config.Telemetry.Enabled && config.Application.GoogleProjectId != ""
}

// SetupOpenTelemetry configures propagation and, when enabled, the trace and
// metric pipelines.
//
// Inputs:
//   - ctx: Used for resource detection and exporter construction.
//   - config: Supplies the project id, the enabled flag and the service name.
//
// Returns:
//   - shutdown: Flushes and stops every installed provider. Always non-nil
//     when err is nil.
//   - err: An exporter or resource could not be created.
func SetupOpenTelemetry(ctx context.Context, config *cloud.Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())

	if !ExportEnabled(config) {
		slog.Info("telemetry export disabled")
		return shutdown, nil
	}

	serviceName := config.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = config.Application.Name
	}
	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		slog.Warn("partial resource detection", "error", err)
	} else if err != nil {
		slog.Error("resource.New failed", "error", err)
		return nil, err
	}

	traceExporter, err := texporter.New(texporter.WithProjectID(config.Application.GoogleProjectId))
	if err != nil {
		slog.Error("unable to set up trace exporter", "error", err)
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	metricExporter, err := mexporter.New(mexporter.WithProjectID(config.Application.GoogleProjectId))
	if err != nil {
		slog.Error("unable to set up metric exporter", "error", err)
		return nil, errors.Join(err, shutdown(ctx))
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	otel.SetMeterProvider(mp)

	slog.Info("telemetry export enabled", "project", config.Application.GoogleProjectId, "service", serviceName)
	return shutdown, nil
}
