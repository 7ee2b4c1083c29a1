package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TraceStatus is the lifecycle state of a trace.
type TraceStatus string

const (
	TraceStatusRunning   TraceStatus = "running"
	TraceStatusCompleted TraceStatus = "completed"
	TraceStatusError     TraceStatus = "error"
	TraceStatusCancelled TraceStatus = "cancelled"
)

// TraceData describes one agent run for tracing purposes: one trace per
// Loop.Run call, holding every LLM/tool/agent span underneath it.
type TraceData struct {
	ID            uuid.UUID
	RunID         string
	SessionKey    string
	UserID        string
	Channel       string
	Name          string
	InputPreview  string
	Status        TraceStatus
	StartTime     time.Time
	EndTime       *time.Time
	CreatedAt     time.Time
	Tags          []string
	AgentID       *uuid.UUID
	ParentTraceID *uuid.UUID
	Error         string
	OutputPreview string
}

// SpanType discriminates the kind of work a span records.
type SpanType string

const (
	SpanTypeAgent    SpanType = "agent"
	SpanTypeLLMCall  SpanType = "llm_call"
	SpanTypeToolCall SpanType = "tool_call"
	SpanTypeSubagent SpanType = "subagent"
)

// SpanStatus is the outcome of a span.
type SpanStatus string

const (
	SpanStatusRunning   SpanStatus = "running"
	SpanStatusCompleted SpanStatus = "completed"
	SpanStatusError     SpanStatus = "error"
)

// SpanLevel mirrors common observability-platform severity levels
// (LangSmith/Langfuse-style DEFAULT/WARNING/ERROR), passed through as an
// otel span attribute.
const (
	SpanLevelDefault = "DEFAULT"
	SpanLevelWarning = "WARNING"
	SpanLevelError   = "ERROR"
)

// SpanData describes one emitted span within a trace. Collector.EmitSpan
// translates this into a real OpenTelemetry span rather than persisting it
// to a database — there is no managed-mode trace store in this deployment.
type SpanData struct {
	ID            uuid.UUID
	TraceID       uuid.UUID
	ParentSpanID  *uuid.UUID
	SpanType      SpanType
	Name          string
	StartTime     time.Time
	EndTime       *time.Time
	DurationMS    int
	Model         string
	Provider      string
	ToolName      string
	ToolCallID    string
	InputPreview  string
	OutputPreview string
	InputTokens   int
	OutputTokens  int
	FinishReason  string
	Status        SpanStatus
	Level         string
	Error         string
	Metadata      json.RawMessage
	AgentID       *uuid.UUID
	CreatedAt     time.Time
}
