// Package observability configures process-wide logging: a console slog
// handler, optionally fanned out to an OpenTelemetry log pipeline.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Exporter selects where OpenTelemetry log records are sent.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlphttp"
	ExporterOTLPGRPC Exporter = "otlpgrpc"
)

// instrumentationName identifies log records emitted through the bridge.
const instrumentationName = "github.com/florianilch/zotcon"

// Options configures Instrument.
type Options struct {
	Level  slog.Level
	Format string // text or json
	// Exporter enables the OpenTelemetry pipeline unless empty or ExporterNone.
	Exporter Exporter
	// Endpoint overrides the OTLP endpoint URL; the exporter's environment
	// defaults apply when empty.
	Endpoint string
	// Writer receives console output, os.Stderr if nil.
	Writer io.Writer
}

// Instrument installs the default slog logger. The returned function flushes
// and stops the OpenTelemetry pipeline; it is safe to call when none was set up.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var console slog.Handler
	switch opts.Format {
	case "", "text":
		console = slog.NewTextHandler(w, handlerOpts)
	case "json":
		console = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	shutdown := func(context.Context) error { return nil }
	handler := console

	if opts.Exporter != "" && opts.Exporter != ExporterNone {
		exporter, err := newExporter(ctx, opts.Exporter, opts.Endpoint, w)
		if err != nil {
			return nil, fmt.Errorf("creating %s log exporter: %w", opts.Exporter, err)
		}

		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))),
		)
		shutdown = provider.Shutdown

		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			slog.New(console).Warn("opentelemetry error", "error", err)
		}))

		handler = slogmulti.Fanout(console, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	slog.SetDefault(slog.New(handler))
	return shutdown, nil
}

func newExporter(ctx context.Context, kind Exporter, endpoint string, w io.Writer) (sdklog.Exporter, error) {
	switch kind {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		return nil, errors.New("unsupported exporter")
	}
}

// severity maps an slog level to the OpenTelemetry minimum severity.
type severity slog.Level

func (s severity) Severity() otellog.Severity {
	switch level := slog.Level(s); {
	case level >= slog.LevelError:
		return otellog.SeverityError
	case level >= slog.LevelWarn:
		return otellog.SeverityWarn
	case level >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}
