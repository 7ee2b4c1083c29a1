package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jsdzhang/moltis/internal/providers"
	"github.com/jsdzhang/moltis/internal/store"
	"github.com/jsdzhang/moltis/internal/tracing"
)

func (sm *SubagentManager) emitLLMSpan(ctx context.Context, start time.Time, iteration int, model string, messages []providers.Message, resp *providers.ChatResponse, callErr error) {
	traceID := tracing.TraceIDFromContext(ctx)
	collector := tracing.CollectorFromContext(ctx)
	if collector == nil || traceID == uuid.Nil {
		return
	}

	now := time.Now().UTC()
	span := store.SpanData{
		TraceID:    traceID,
		SpanType:   store.SpanTypeLLMCall,
		Name:       fmt.Sprintf("subagent %s/%s #%d", sm.provider.Name(), model, iteration),
		StartTime:  start,
		EndTime:    &now,
		DurationMS: int(now.Sub(start).Milliseconds()),
		Model:      model,
		Provider:   sm.provider.Name(),
		Status:     store.SpanStatusCompleted,
		Level:      store.SpanLevelDefault,
		CreatedAt:  now,
	}
	if parentID := tracing.ParentSpanIDFromContext(ctx); parentID != uuid.Nil {
		span.ParentSpanID = &parentID
	}

	if callErr != nil {
		span.Status = store.SpanStatusError
		span.Error = callErr.Error()
	} else if resp != nil {
		if resp.Usage != nil {
			span.InputTokens = resp.Usage.PromptTokens
			span.OutputTokens = resp.Usage.CompletionTokens
		}
		span.FinishReason = resp.FinishReason
		span.OutputPreview = truncatePreview(resp.Content, 500)
	}

	collector.EmitSpan(span)
}

func (sm *SubagentManager) emitToolSpan(ctx context.Context, start time.Time, toolName, toolCallID, input, outputForLLM string, isError bool) {
	traceID := tracing.TraceIDFromContext(ctx)
	collector := tracing.CollectorFromContext(ctx)
	if collector == nil || traceID == uuid.Nil {
		return
	}

	now := time.Now().UTC()
	span := store.SpanData{
		TraceID:       traceID,
		SpanType:      store.SpanTypeToolCall,
		Name:          toolName,
		StartTime:     start,
		EndTime:       &now,
		DurationMS:    int(now.Sub(start).Milliseconds()),
		ToolName:      toolName,
		ToolCallID:    toolCallID,
		InputPreview:  truncatePreview(input, 500),
		OutputPreview: truncatePreview(outputForLLM, 500),
		Status:        store.SpanStatusCompleted,
		Level:         store.SpanLevelDefault,
		CreatedAt:     now,
	}
	if parentID := tracing.ParentSpanIDFromContext(ctx); parentID != uuid.Nil {
		span.ParentSpanID = &parentID
	}
	if isError {
		span.Status = store.SpanStatusError
		span.Error = truncatePreview(outputForLLM, 200)
	}

	collector.EmitSpan(span)
}

// emitSubagentSpan records the root span for one subagent execution,
// nested under the parent agent's root span.
func (sm *SubagentManager) emitSubagentSpan(ctx context.Context, spanID uuid.UUID, start time.Time, task *SubagentTask, model, finalContent string) {
	traceID := tracing.TraceIDFromContext(ctx)
	collector := tracing.CollectorFromContext(ctx)
	if collector == nil || traceID == uuid.Nil {
		return
	}

	now := time.Now().UTC()
	span := store.SpanData{
		ID:         spanID,
		TraceID:    traceID,
		SpanType:   store.SpanTypeSubagent,
		Name:       fmt.Sprintf("subagent:%s", task.Label),
		StartTime:  start,
		EndTime:    &now,
		DurationMS: int(now.Sub(start).Milliseconds()),
		Model:      model,
		Provider:   sm.provider.Name(),
		Status:     store.SpanStatusCompleted,
		Level:      store.SpanLevelDefault,
		CreatedAt:  now,
	}
	if parentID := tracing.ParentSpanIDFromContext(ctx); parentID != uuid.Nil {
		span.ParentSpanID = &parentID
	}
	if task.Status == TaskStatusFailed || task.Status == TaskStatusCancelled {
		span.Status = store.SpanStatusError
		span.Error = task.Result
	} else {
		span.OutputPreview = truncatePreview(finalContent, 500)
	}

	collector.EmitSpan(span)
}

func truncatePreview(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
