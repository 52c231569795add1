package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/stockpile-io/stockpile/internal/log"
)

// ExportFlag is a bool that treats any value other than an explicit "no" as
// true, so that OTEL_EXPORTER_OTLP_ENDPOINT doubles as the enable switch.
type ExportFlag bool

func (e *ExportFlag) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	*e = ExportFlag(!(v == "false" || v == "0" || v == "no" || v == ""))
	return nil
}

type Config struct {
	LogLevel log.Level  `default:"error" help:"OTEL log level." env:"STOCKPILE_O11Y_LOG_LEVEL"`
	Export   ExportFlag `help:"Export metrics and traces over OTLP." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Init installs OTLP metric and trace exporters as the global OTel
// providers. When export is disabled the globals are left untouched and all
// instrumentation quietly no-ops.
func Init(ctx context.Context, serviceName, serviceVersion string, config Config) error {
	logger := log.FromContext(ctx)
	if !config.Export {
		logger.Tracef("OTEL export is disabled, set OTEL_EXPORTER_OTLP_ENDPOINT to enable")
		return nil
	}

	logger.Debugf("OTEL is enabled, exporting to %s", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	otel.SetLogger(newOtelLogger(logger, config.LogLevel))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) { logger.Errorf(err, "OTEL") }))

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		))
	if err != nil {
		return fmt.Errorf("failed to create OTEL resource: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create OTEL metric exporter: %w", err)
	}
	otel.SetMeterProvider(metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	))

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create OTEL trace exporter: %w", err)
	}
	otel.SetTracerProvider(trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	))

	return nil
}
