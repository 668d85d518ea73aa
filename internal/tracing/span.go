package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartReplaySpan starts the root span of a recorded timeline replay.
func StartReplaySpan(ctx context.Context, tracer trace.Tracer, input string) (context.Context, trace.Span) {
	spanName := "replay"
	if input != "" {
		spanName = "replay " + input
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	if input != "" {
		span.SetAttributes(attribute.String("pagepulse.input", input))
	}
	return ctx, span
}

// StartSessionSpan starts the span covering one live ingest connection.
func StartSessionSpan(ctx context.Context, tracer trace.Tracer, sessionID, origin string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "ingest session",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(attribute.String("pagepulse.session", sessionID))
	if origin != "" {
		span.SetAttributes(attribute.String("http.request.header.origin", origin))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ExtractHTTPHeaders continues a W3C trace carried by an incoming request,
// such as a traceparent header set by the page that opened the connection.
func ExtractHTTPHeaders(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}
