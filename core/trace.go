package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// StringAttr is a key/value pair attached to a span.
type StringAttr struct {
	Name  string
	Value string
}

// Spaner is a span of a request trace.
type Spaner interface {
	SetAttributesString(attrs ...StringAttr)
	IsRecording() bool
	Error(err error)
	End()
}

// Tracer creates spans. The engine ships with a noop tracer; use
// OptionSetTracer with NewOtelTracer to emit OpenTelemetry spans.
type Tracer interface {
	Start(c context.Context, name string) (context.Context, Spaner)
}

type tracer struct{}
type span struct{}

func (t *tracer) Start(c context.Context, name string) (context.Context, Spaner) {
	return c, &span{}
}

func (s *span) SetAttributesString(attrs ...StringAttr) {}
func (s *span) IsRecording() bool                       { return false }
func (s *span) Error(err error)                         {}
func (s *span) End()                                    {}

// NewOtelTracer returns a Tracer backed by the global OpenTelemetry
// tracer provider.
func NewOtelTracer() Tracer {
	return &otelTracer{tr: otel.Tracer("querygate")}
}

type otelTracer struct {
	tr oteltrace.Tracer
}

func (t *otelTracer) Start(c context.Context, name string) (context.Context, Spaner) {
	c1, sp := t.tr.Start(c, name)
	return c1, &otelSpan{sp: sp}
}

type otelSpan struct {
	sp oteltrace.Span
}

func (s *otelSpan) SetAttributesString(attrs ...StringAttr) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kv = append(kv, attribute.String(a.Name, a.Value))
	}
	s.sp.SetAttributes(kv...)
}

func (s *otelSpan) IsRecording() bool {
	return s.sp.IsRecording()
}

func (s *otelSpan) Error(err error) {
	if err == nil {
		return
	}
	s.sp.RecordError(err)
	s.sp.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.sp.End()
}
