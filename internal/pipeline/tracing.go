package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of pipeline spans.
const tracerName = "github.com/maauso/visxp-prep/internal/pipeline"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
