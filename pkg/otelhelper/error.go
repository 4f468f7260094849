package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetOutcome ends a processed unit of work as ok or failed with message.
func SetOutcome(span trace.Span, success bool, message string) {
	if success {
		span.SetStatus(codes.Ok, "")

		return
	}

	span.SetStatus(codes.Error, message)
}
