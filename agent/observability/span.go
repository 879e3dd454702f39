package observability

import (
	"sync"
	"time"
)

// SpanKind classifies the role a span plays in a trace.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// SpanStatus is a span's completion status.
type SpanStatus string

const (
	SpanStatusUnset SpanStatus = "unset"
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// SpanEvent records a point-in-time occurrence within a span's lifetime.
type SpanEvent struct {
	Name       string
	Timestamp  time.Time
	Attributes map[string]any
}

// Span is a single unit of work within a trace.
type Span struct {
	mu sync.Mutex

	Name         string
	SpanID       string
	TraceID      string
	ParentSpanID string
	Kind         SpanKind
	StartTime    time.Time
	EndTime      time.Time
	Status       SpanStatus
	Attributes   map[string]any
	Events       []SpanEvent
	ErrorMessage string
}

// AddAttribute sets an attribute on the span.
func (s *Span) AddAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Attributes == nil {
		s.Attributes = make(map[string]any)
	}
	s.Attributes[key] = value
}

// AddEvent appends a timestamped event to the span.
func (s *Span) AddEvent(name string, attributes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, SpanEvent{Name: name, Timestamp: time.Now(), Attributes: attributes})
}

// SetError marks the span as failed and records the error message.
func (s *Span) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SpanStatusError
	s.ErrorMessage = message
}

// End stamps the span's end time. A span still SpanStatusUnset becomes OK.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	if s.Status == SpanStatusUnset {
		s.Status = SpanStatusOK
	}
}

// DurationMS reports the span's duration in milliseconds, measured against
// Now if the span has not yet ended.
func (s *Span) DurationMS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return float64(end.Sub(s.StartTime)) / float64(time.Millisecond)
}
