package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span started here.
const TracerName = "github.com/teemow/openproject-mcp"

// Span attribute keys.
const (
	AttrTool        = "mcp.tool"
	AttrService     = "backend.service"
	AttrOperation   = "backend.operation"
	AttrWorkPackage = "openproject.work_package.id"
	AttrQuery       = "openproject.query.id"
)

// SpanOption adds attributes to a span at start.
type SpanOption func([]attribute.KeyValue) []attribute.KeyValue

// WithBackend tags a tool span with the backend call it makes.
func WithBackend(service, operation string) SpanOption {
	return func(attrs []attribute.KeyValue) []attribute.KeyValue {
		return append(attrs, attribute.String(AttrService, service), attribute.String(AttrOperation, operation))
	}
}

// WithWorkPackage records the work package a span is about.
func WithWorkPackage(id int) SpanOption {
	return func(attrs []attribute.KeyValue) []attribute.KeyValue {
		return append(attrs, attribute.Int(AttrWorkPackage, id))
	}
}

// WithQuery records the saved query (board column) a span reads.
func WithQuery(id int) SpanOption {
	return func(attrs []attribute.KeyValue) []attribute.KeyValue {
		return append(attrs, attribute.Int(AttrQuery, id))
	}
}

// WithAttributes adds arbitrary attributes.
func WithAttributes(kv ...attribute.KeyValue) SpanOption {
	return func(attrs []attribute.KeyValue) []attribute.KeyValue {
		return append(attrs, kv...)
	}
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue, opts []SpanOption) (context.Context, trace.Span) {
	for _, opt := range opts {
		attrs = opt(attrs)
	}
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(kind),
	)
}

// StartToolSpan starts the server span "tool.<name>" around an MCP tool call.
func StartToolSpan(ctx context.Context, tool string, opts ...SpanOption) (context.Context, trace.Span) {
	return startSpan(ctx, "tool."+tool, trace.SpanKindServer,
		[]attribute.KeyValue{attribute.String(AttrTool, tool)}, opts)
}

// StartBackendSpan starts the client span "<service>.<operation>" around a
// backend API operation. The operation may issue several HTTP requests.
func StartBackendSpan(ctx context.Context, service, operation string, opts ...SpanOption) (context.Context, trace.Span) {
	return startSpan(ctx, service+"."+operation, trace.SpanKindClient,
		[]attribute.KeyValue{attribute.String(AttrService, service), attribute.String(AttrOperation, operation)}, opts)
}

// EndSpan ends span with status Ok, or Error with err recorded.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// FailSpan ends span with status Error but no recorded exception. Tools use it
// for error results, which are answers rather than Go errors.
func FailSpan(span trace.Span, description string) {
	span.SetStatus(codes.Error, description)
	span.End()
}

// SpanIDs returns the trace and span id of the span in ctx, or empty strings
// when ctx carries no valid span.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
