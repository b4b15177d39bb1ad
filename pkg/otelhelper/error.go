package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorStageKey names the pipeline stage a recorded error came from.
const ErrorStageKey = "flowforge.error.stage"

// SetError marks span as failed and records err with attrs on the error event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// StageError is SetError with the failing stage attached.
func StageError(span trace.Span, stage string, err error) {
	SetError(span, err, attribute.String(ErrorStageKey, stage))
}
