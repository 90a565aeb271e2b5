package postgres

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("summa/storage/postgres")

// startSpan opens a span named "postgres.<op>" the way every repository
// method in the teacher's adapters/postgres packages does.
func startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+op)
}
