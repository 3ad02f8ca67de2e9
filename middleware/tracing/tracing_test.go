package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/eventfold/eventfold"
)

func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracer(WithTracerProvider(provider), WithServiceName("planning"))
	return tracer, recorder
}

func newCommand(name string) *eventfold.Command {
	return eventfold.NewCommand("planning", eventfold.AggregateRef{Name: "peerGroup", ID: "pg-1"}, name, eventfold.State{})
}

func attributeValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestCommandMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("records command coordinates and outcome on success", func(t *testing.T) {
		tracer, recorder := newRecordingTracer()
		handle := CommandMiddleware(tracer)(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			return eventfold.Result{Outcome: eventfold.OutcomeSuccess, Events: []eventfold.Event{{Name: "started"}}}, nil
		})

		_, err := handle(ctx, newCommand("start"))
		require.NoError(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		span := spans[0]

		assert.Equal(t, "command.planning.peerGroup.start", span.Name())
		assert.Equal(t, codes.Ok, span.Status().Code)

		service, ok := attributeValue(span, "eventfold.service")
		require.True(t, ok)
		assert.Equal(t, "planning", service.AsString())

		outcome, ok := attributeValue(span, "eventfold.outcome")
		require.True(t, ok)
		assert.Equal(t, "success", outcome.AsString())

		count, ok := attributeValue(span, "eventfold.events.count")
		require.True(t, ok)
		assert.Equal(t, int64(1), count.AsInt64())
	})

	t.Run("a failed result marks the span as error", func(t *testing.T) {
		tracer, recorder := newRecordingTracer()
		handle := CommandMiddleware(tracer)(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			return eventfold.Result{Outcome: eventfold.OutcomeFailed, Reason: "failed to handle command"}, nil
		})

		_, err := handle(ctx, newCommand("start"))
		require.NoError(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Equal(t, "failed to handle command", spans[0].Status().Description)
	})

	t.Run("an infrastructure error is recorded on the span", func(t *testing.T) {
		tracer, recorder := newRecordingTracer()
		cause := errors.New("store down")
		handle := CommandMiddleware(tracer)(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			return eventfold.Result{}, cause
		})

		_, err := handle(ctx, newCommand("start"))
		require.Error(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		require.Len(t, spans[0].Events(), 1)
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})

	t.Run("handlers can see the span through the context", func(t *testing.T) {
		tracer, recorder := newRecordingTracer()
		handle := CommandMiddleware(tracer)(func(ctx context.Context, cmd *eventfold.Command) (eventfold.Result, error) {
			AddEvent(ctx, "ownership initialized")
			return eventfold.Result{Outcome: eventfold.OutcomeSuccess}, nil
		})

		_, err := handle(ctx, newCommand("start"))
		require.NoError(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		require.Len(t, spans[0].Events(), 1)
		assert.Equal(t, "ownership initialized", spans[0].Events()[0].Name)
	})
}

func TestNewTracer(t *testing.T) {
	tracer := NewTracer()
	assert.Equal(t, DefaultServiceName, tracer.ServiceName())
}
