// Package tracing provides OpenTelemetry tracing for the command pipeline.
//
// Basic usage:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer(tracing.WithServiceName("planning"))
//	pipeline := eventfold.NewPipeline(wm, repo, publisher,
//		eventfold.Use(tracing.CommandMiddleware(tracer)),
//	)
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventfold/eventfold"
)

const (
	// TracerName is the instrumentation name used for spans.
	TracerName = "github.com/eventfold/eventfold"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "eventfold"
)

// Tracer wraps an OpenTelemetry tracer for pipeline operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) Option {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a Tracer backed by the global TracerProvider.
func NewTracer(opts ...Option) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// CommandMiddleware creates pipeline middleware that traces command
// handling. The span records the command coordinates, its correlation ID
// and the final outcome.
func CommandMiddleware(tracer *Tracer) eventfold.Middleware {
	return func(next eventfold.HandleFunc) eventfold.HandleFunc {
		return func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			spanName := fmt.Sprintf("command.%s.%s.%s", cmd.Context, cmd.Aggregate.Name, cmd.Name)

			ctx, span := tracer.StartSpan(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("eventfold.service", tracer.serviceName),
				attribute.String("eventfold.command.id", cmd.ID),
				attribute.String("eventfold.command.name", cmd.Name),
				attribute.String("eventfold.context", cmd.Context),
				attribute.String("eventfold.aggregate.name", cmd.Aggregate.Name),
				attribute.String("eventfold.aggregate.id", cmd.Aggregate.ID),
				attribute.String("eventfold.correlation_id", cmd.Metadata.CorrelationID),
			)

			result, err := next(ctx, cmd)

			span.SetAttributes(attribute.String("eventfold.outcome", result.Outcome.String()))

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case result.Outcome == eventfold.OutcomeFailed:
				span.SetStatus(codes.Error, result.Reason)
			default:
				span.SetStatus(codes.Ok, "")
				span.SetAttributes(attribute.Int("eventfold.events.count", len(result.Events)))
			}

			return result, err
		}
	}
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
