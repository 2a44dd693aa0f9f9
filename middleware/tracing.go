package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storeforge/provision/job"
)

// tracerName is the instrumentation scope name for provision tracing.
const tracerName = "github.com/storeforge/provision"

// Tracing returns middleware that wraps stage execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: provision.job.id, provision.stage,
// provision.store_name, provision.progress.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, stage job.Stage, next Handler) (job.Result, error) {
		ctx, span := tracer.Start(ctx, "provision.stage.execute",
			trace.WithAttributes(
				attribute.String("provision.job.id", j.ID.String()),
				attribute.String("provision.stage", string(stage)),
				attribute.String("provision.store_name", j.Input.StoreName),
				attribute.Int("provision.progress", j.Progress),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
