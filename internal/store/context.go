package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyAgentID ctxKey = iota
	ctxKeyUserID
	ctxKeyAgentType
	ctxKeySenderID
)

// WithAgentID attaches the running agent's UUID to ctx, for tool routing
// that needs to look up per-agent policy or scoped storage.
func WithAgentID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyAgentID, id)
}

// AgentIDFromContext returns the running agent's UUID, or uuid.Nil.
func AgentIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyAgentID).(uuid.UUID)
	return id
}

// WithUserID attaches the external user ID (e.g. a channel's sender ID) to
// ctx, for per-user scoping of memory, context files, and session lookups.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext returns the active external user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

// WithAgentType attaches the agent's type ("open" or "predefined") to ctx.
func WithAgentType(ctx context.Context, agentType string) context.Context {
	return context.WithValue(ctx, ctxKeyAgentType, agentType)
}

// AgentTypeFromContext returns the active agent type, or "".
func AgentTypeFromContext(ctx context.Context) string {
	t, _ := ctx.Value(ctxKeyAgentType).(string)
	return t
}

// WithSenderID attaches the original message sender's ID to ctx, distinct
// from UserID when a subagent or announce run acts on another sender's
// behalf (e.g. group file writer permission checks).
func WithSenderID(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, ctxKeySenderID, senderID)
}

// SenderIDFromContext returns the active sender ID, or "".
func SenderIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeySenderID).(string)
	return id
}

// ValidateUserID rejects empty or pathologically long user IDs before
// they reach a store query or filesystem path segment.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is empty")
	}
	if len(userID) > 256 {
		return fmt.Errorf("user id exceeds 256 characters")
	}
	if strings.ContainsAny(userID, "/\\") {
		return fmt.Errorf("user id contains invalid characters")
	}
	return nil
}
