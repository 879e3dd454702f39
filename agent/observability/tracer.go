package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracer manages spans and trace/span-id linkage for a single service.
type Tracer struct {
	ServiceName string

	mu             sync.Mutex
	spans          map[string]*Span
	currentTraceID string
	currentSpanID  string
}

// NewTracer constructs a Tracer for serviceName.
func NewTracer(serviceName string) *Tracer {
	return &Tracer{ServiceName: serviceName, spans: make(map[string]*Span)}
}

func shortID() string {
	return uuid.New().String()[:8]
}

// StartSpan begins a new span, linking it to the tracer's current trace and,
// if one is active, the current span as parent. The new span becomes current;
// EndSpan leaves it current, and only Trace restores the previous span.
func (t *Tracer) StartSpan(name string, kind SpanKind, attributes map[string]any) *Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	traceID := t.currentTraceID
	if traceID == "" {
		traceID = shortID()
	}
	parentSpanID := t.currentSpanID

	attrs := make(map[string]any, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}

	span := &Span{
		Name:         name,
		SpanID:       shortID(),
		TraceID:      traceID,
		ParentSpanID: parentSpanID,
		Kind:         kind,
		StartTime:    time.Now(),
		Status:       SpanStatusUnset,
		Attributes:   attrs,
	}

	t.spans[span.SpanID] = span
	t.currentSpanID = span.SpanID
	t.currentTraceID = traceID

	return span
}

// EndSpan finalizes span with the given status. It does not restore the
// tracer's previous current span; callers that need strict nesting should
// track and restore currentSpanID themselves via Trace.
func (t *Tracer) EndSpan(span *Span, status SpanStatus) {
	span.mu.Lock()
	span.Status = status
	span.mu.Unlock()
	span.End()
}

// SpanCount reports the total number of spans the tracer has recorded,
// across every trace.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// GetTrace returns every span recorded under traceID.
func (t *Tracer) GetTrace(traceID string) []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	var spans []*Span
	for _, s := range t.spans {
		if s.TraceID == traceID {
			spans = append(spans, s)
		}
	}
	return spans
}

// Trace starts a span, runs fn with it, ends the span OK on success or ERROR
// on failure (recording fn's error message on the span), and restores the
// tracer's previously-current span/trace before returning. It mirrors the
// source system's `with tracer.trace(...)` context manager.
func (t *Tracer) Trace(ctx context.Context, name string, kind SpanKind, attributes map[string]any, fn func(ctx context.Context, span *Span) error) error {
	t.mu.Lock()
	priorTraceID, priorSpanID := t.currentTraceID, t.currentSpanID
	t.mu.Unlock()

	span := t.StartSpan(name, kind, attributes)

	defer func() {
		t.mu.Lock()
		t.currentTraceID, t.currentSpanID = priorTraceID, priorSpanID
		t.mu.Unlock()
	}()

	err := fn(ctx, span)
	if err != nil {
		t.EndSpan(span, SpanStatusError)
		span.SetError(err.Error())
		return err
	}
	t.EndSpan(span, SpanStatusOK)
	return nil
}
