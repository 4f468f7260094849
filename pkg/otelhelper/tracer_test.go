package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/taskflow/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_SetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := otelhelper.StartSpan(context.Background(), tracer, "task.execute",
		attribute.String(otelhelper.TaskIDKey, "task-1"))
	otelhelper.SetError(span, errors.New("boom"), attribute.String(otelhelper.ExecutionIDKey, "exec-1"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "task.execute", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.TaskIDKey, "task-1"))
}

func TestSetOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, ok := tracer.Start(context.Background(), "ok")
	otelhelper.SetOutcome(ok, true, "")
	ok.End()

	_, failed := tracer.Start(context.Background(), "failed")
	otelhelper.SetOutcome(failed, false, "HTTP 500")
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestNoopTracer(t *testing.T) {
	_, span := otelhelper.StartSpan(context.Background(), otelhelper.NoopTracer(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
