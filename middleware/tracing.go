package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/attempts/job"
)

const tracerName = "github.com/xraph/attempts"

// Tracing returns middleware that wraps each attempt in a consumer span
// from the global TracerProvider.
//
// Span attributes: attempts.job.id, attempts.job.name, attempts.queue,
// attempts.connection, attempts.identity, attempts.attempt and
// attempts.max_tries. A failing body sets the span status to Error and
// attempts.final marks whether that failure was terminal.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		a := AttemptFrom(ctx)
		ctx, span := tracer.Start(ctx, "attempts.job.execute",
			trace.WithAttributes(
				attribute.String("attempts.job.id", j.ID.String()),
				attribute.String("attempts.job.name", j.Name),
				attribute.String("attempts.queue", j.Queue),
				attribute.String("attempts.connection", j.Connection),
				attribute.String("attempts.identity", a.Identity),
				attribute.Int("attempts.attempt", a.Number),
				attribute.Int("attempts.max_tries", a.MaxTries),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("attempts.final", a.Final()))
		return err
	}
}
