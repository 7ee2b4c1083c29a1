// Package tracing carries trace/span identity through a request's context
// and turns emitted spans into real OpenTelemetry spans, covering gateway
// dispatch, sandbox exec, and WASM tool invocation.
package tracing

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyTraceID ctxKey = iota
	ctxKeyCollector
	ctxKeyParentSpanID
	ctxKeyAnnounceParentSpanID
	ctxKeyDelegateParentTraceID
)

// WithTraceID attaches the active trace's ID to ctx.
func WithTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, id)
}

// TraceIDFromContext returns the active trace ID, or uuid.Nil if none.
func TraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyTraceID).(uuid.UUID)
	return id
}

// WithCollector attaches the Collector that should receive spans emitted
// from ctx's call chain.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, ctxKeyCollector, c)
}

// CollectorFromContext returns the active Collector, or nil if tracing is
// disabled for this run.
func CollectorFromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(ctxKeyCollector).(*Collector)
	return c
}

// WithParentSpanID sets the span ID that the next span emitted from ctx
// should nest under.
func WithParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyParentSpanID, id)
}

// ParentSpanIDFromContext returns the current parent span ID, or uuid.Nil.
func ParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyParentSpanID).(uuid.UUID)
	return id
}

// WithAnnounceParentSpanID records the parent agent's root span ID for an
// announce-triggered run, so the new run's agent span nests under it
// instead of starting a fresh top-level span.
func WithAnnounceParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyAnnounceParentSpanID, id)
}

// AnnounceParentSpanIDFromContext returns the announce parent span ID, or uuid.Nil.
func AnnounceParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyAnnounceParentSpanID).(uuid.UUID)
	return id
}

// DelegateParentTraceIDFromContext returns the trace ID of a delegating run
// when the current run was dispatched on another agent's behalf, or
// uuid.Nil for a root run.
func DelegateParentTraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyDelegateParentTraceID).(uuid.UUID)
	return id
}

// WithDelegateParentTraceID marks ctx as belonging to a run dispatched on
// behalf of another agent's trace, e.g. a cross-agent handoff.
func WithDelegateParentTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyDelegateParentTraceID, id)
}
