package tracing

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jsdzhang/moltis/internal/store"
)

// Collector turns TraceData/SpanData into real OpenTelemetry spans. A run's
// full trace is not batched and shipped as one object: CreateTrace opens the
// trace's local bookkeping, EmitSpan starts-and-immediately-ends one child
// span (spans reach the collector already timed), and FinishTrace closes
// the root.
type Collector struct {
	tracer  oteltrace.Tracer
	verbose bool

	provider *sdktrace.TracerProvider

	mu     sync.Mutex
	traces map[string]*traceState
}

type traceState struct {
	ctx  context.Context
	span oteltrace.Span
}

// NewCollector builds a Collector. verbose controls whether full message
// bodies are included in span previews (GOCLAW_TRACE_VERBOSE).
func NewCollector(verbose bool) *Collector {
	return &Collector{
		tracer:  otel.Tracer("moltis/agent"),
		verbose: verbose,
		traces:  make(map[string]*traceState),
	}
}

// Verbose reports whether full request/response bodies should be captured.
func (c *Collector) Verbose() bool { return c.verbose }

// Start installs an OTLP HTTP exporter as the global TracerProvider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set; otherwise tracing stays local-only
// (spans are still created against the otel no-op provider, which is cheap
// but goes nowhere).
func (c *Collector) Start() error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := otlptracehttp.NewClient(otlptracehttp.WithEndpointURL(endpoint))
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	c.provider = provider
	c.tracer = otel.Tracer("moltis/agent")
	return nil
}

// Stop flushes and shuts down the exporter, if one was started.
func (c *Collector) Stop() {
	if c.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.provider.Shutdown(ctx)
}

// CreateTrace opens the root span for a new trace.
func (c *Collector) CreateTrace(ctx context.Context, trace *store.TraceData) error {
	spanCtx, span := c.tracer.Start(ctx, trace.Name,
		oteltrace.WithAttributes(
			attribute.String("trace.id", trace.ID.String()),
			attribute.String("session.key", trace.SessionKey),
			attribute.String("channel", trace.Channel),
			attribute.String("user.id", trace.UserID),
			attribute.String("input.preview", trace.InputPreview),
		),
	)

	c.mu.Lock()
	c.traces[trace.ID.String()] = &traceState{ctx: spanCtx, span: span}
	c.mu.Unlock()
	return nil
}

// FinishTrace closes the root span opened by CreateTrace.
func (c *Collector) FinishTrace(ctx context.Context, traceID uuid.UUID, status store.TraceStatus, errMsg, outputPreview string) {
	key := traceID.String()

	c.mu.Lock()
	ts, ok := c.traces[key]
	if ok {
		delete(c.traces, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	ts.span.SetAttributes(
		attribute.String("status", string(status)),
		attribute.String("output.preview", outputPreview),
	)
	if errMsg != "" {
		ts.span.SetAttributes(attribute.String("error", errMsg))
	}
	ts.span.End()
}

// EmitSpan records one already-timed child span (LLM call, tool call, agent
// run, subagent run) under its trace.
func (c *Collector) EmitSpan(span store.SpanData) {
	c.mu.Lock()
	ts, ok := c.traces[span.TraceID.String()]
	c.mu.Unlock()

	parent := context.Background()
	if ok {
		parent = ts.ctx
	}

	start := span.StartTime
	if start.IsZero() {
		start = span.CreatedAt
	}

	_, childSpan := c.tracer.Start(parent, span.Name,
		oteltrace.WithTimestamp(start),
		oteltrace.WithAttributes(spanAttributes(span)...),
	)

	end := time.Now()
	if span.EndTime != nil {
		end = *span.EndTime
	}
	childSpan.End(oteltrace.WithTimestamp(end))
}

func spanAttributes(span store.SpanData) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("span.type", string(span.SpanType)),
		attribute.String("status", string(span.Status)),
		attribute.String("level", span.Level),
	}
	if span.Model != "" {
		attrs = append(attrs, attribute.String("model", span.Model))
	}
	if span.Provider != "" {
		attrs = append(attrs, attribute.String("provider", span.Provider))
	}
	if span.ToolName != "" {
		attrs = append(attrs, attribute.String("tool.name", span.ToolName))
		attrs = append(attrs, attribute.String("tool.call_id", span.ToolCallID))
	}
	if span.InputPreview != "" {
		attrs = append(attrs, attribute.String("input.preview", span.InputPreview))
	}
	if span.OutputPreview != "" {
		attrs = append(attrs, attribute.String("output.preview", span.OutputPreview))
	}
	if span.InputTokens > 0 {
		attrs = append(attrs, attribute.Int("tokens.input", span.InputTokens))
	}
	if span.OutputTokens > 0 {
		attrs = append(attrs, attribute.Int("tokens.output", span.OutputTokens))
	}
	if span.FinishReason != "" {
		attrs = append(attrs, attribute.String("finish_reason", span.FinishReason))
	}
	if span.Error != "" {
		attrs = append(attrs, attribute.String("error", span.Error))
	}
	return attrs
}
