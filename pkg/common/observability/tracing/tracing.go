/*
Copyright 2026 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tracing configures the process-wide OpenTelemetry tracer provider from the standard OTEL_* environment
// variables.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/pkg/common/observability/logging"
	"github.com/MotorolaMobilityLLC/kernel-sprd-sub017/version"
)

const (
	defaultServiceName  = "gspd"
	defaultEndpoint     = "http://localhost:4317"
	defaultSampler      = "parentbased_traceidratio"
	defaultSamplerRatio = 0.1
	exporterConsole     = "console"
	exporterOTLP        = "otlp"
	envServiceName      = "OTEL_SERVICE_NAME"
	envEndpoint         = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envSampler          = "OTEL_TRACES_SAMPLER"
	envSamplerArg       = "OTEL_TRACES_SAMPLER_ARG"
	envExporter         = "OTEL_TRACES_EXPORTER"
)

type errorHandler struct {
	logger logr.Logger
}

func (h *errorHandler) Handle(err error) {
	h.logger.V(logging.DEFAULT).Error(err, "trace error occurred")
}

// InitTracing installs a batching tracer provider as the global provider. It is shut down once ctx ends.
func InitTracing(ctx context.Context, logger logr.Logger) error {
	logger = logger.WithName("trace")
	handler := &errorHandler{logger: logger}

	if _, ok := os.LookupEnv(envServiceName); !ok {
		os.Setenv(envServiceName, defaultServiceName)
	}
	if _, ok := os.LookupEnv(envEndpoint); !ok {
		os.Setenv(envEndpoint, defaultEndpoint)
	}

	exporter, err := newExporter(ctx, logger, os.Getenv(envExporter))
	if err != nil {
		handler.Handle(fmt.Errorf("init trace exporter failed: %w", err))
		return err
	}

	sampler, err := newSampler(os.Getenv(envSampler), os.Getenv(envSamplerArg))
	if err != nil {
		handler.Handle(err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceVersionKey.String(version.BuildRef),
		)),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(handler)

	go func() {
		<-ctx.Done()
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			handler.Handle(fmt.Errorf("failed to shutdown TraceProvider: %w", err))
		}
		logger.V(logging.DEFAULT).Info("trace provider shutting down")
	}()
	return nil
}

// newSampler builds the sampler named by OTEL_TRACES_SAMPLER. The Go SDK has no automatic sampler configuration, so
// only the parent-based ratio sampler is supported; anything else falls back to it with an error.
func newSampler(samplerType, arg string) (sdktrace.Sampler, error) {
	if samplerType == "" {
		samplerType = defaultSampler
	}
	fallback := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(defaultSamplerRatio))
	if samplerType != defaultSampler {
		return fallback, fmt.Errorf("unsupported sampler type: %s, fallback to %s with %v ratio",
			samplerType, defaultSampler, defaultSamplerRatio)
	}
	if arg == "" {
		return fallback, nil
	}
	fraction, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fallback, fmt.Errorf("invalid sampler ratio %q, fallback to %v: %w", arg, defaultSamplerRatio, err)
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(fraction)), nil
}

// newExporter creates a SpanExporter. Supported types:
// - console: pretty-printed spans on stdout, for development
// - otlp: spans sent through gRPC to an OpenTelemetry collector
func newExporter(ctx context.Context, logger logr.Logger, exporterType string) (sdktrace.SpanExporter, error) {
	if exporterType == "" {
		exporterType = exporterConsole
	}
	logger.Info("init OTel trace exporter", "type", exporterType)

	switch exporterType {
	case exporterConsole:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdouttrace exporter: %w", err)
		}
		return exporter, nil
	case exporterOTLP:
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp-grpc exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter type %q", exporterType)
	}
}
