package migration

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	pathutils "github.com/temirov/trustx-migrate/internal/utils/path"
)

const (
	serviceNameAttributeConstant    = "service.name"
	serviceVersionAttributeConstant = "service.version"
	serviceNameConstant             = "trustx-migrate"
	serviceVersionConstant          = "1.0.0"
)

// TracerShutdown flushes and releases the resources held by a tracer.
type TracerShutdown func(context.Context) error

// NewTracer builds the tracer used for phase spans. Spans are written as JSON to the configured file,
// or to fallbackWriter when no file is set. Disabled tracing yields a no-op tracer.
func NewTracer(tracingContext context.Context, configuration TracingConfiguration, fallbackWriter io.Writer) (trace.Tracer, TracerShutdown, error) {
	if !configuration.Enabled {
		return noop.NewTracerProvider().Tracer(tracerNameConstant), func(context.Context) error { return nil }, nil
	}

	var writer io.Writer = fallbackWriter
	var outputFile *os.File
	if len(configuration.OutputFile) > 0 {
		createdFile, createError := os.Create(pathutils.NewHomeExpander().Expand(configuration.OutputFile))
		if createError != nil {
			return nil, nil, createError
		}
		outputFile = createdFile
		writer = createdFile
	}
	if writer == nil {
		writer = os.Stderr
	}

	exporter, exporterError := stdouttrace.New(stdouttrace.WithWriter(writer))
	if exporterError != nil {
		closeTraceFile(outputFile)
		return nil, nil, exporterError
	}

	traceResource, resourceError := resource.New(tracingContext,
		resource.WithAttributes(
			attribute.String(serviceNameAttributeConstant, serviceNameConstant),
			attribute.String(serviceVersionAttributeConstant, serviceVersionConstant),
		),
	)
	if resourceError != nil {
		closeTraceFile(outputFile)
		return nil, nil, resourceError
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(traceResource),
	)
	shutdown := func(shutdownContext context.Context) error {
		shutdownError := provider.Shutdown(shutdownContext)
		closeTraceFile(outputFile)
		return shutdownError
	}
	return provider.Tracer(tracerNameConstant), shutdown, nil
}

func closeTraceFile(outputFile *os.File) {
	if outputFile != nil {
		_ = outputFile.Close()
	}
}
