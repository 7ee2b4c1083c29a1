package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mode != ModeOff {
		t.Fatalf("expected default mode off, got %v", cfg.Mode)
	}
	if cfg.WorkspaceAccess != AccessRW {
		t.Fatalf("expected default workspace access rw, got %v", cfg.WorkspaceAccess)
	}
	if cfg.Scope != ScopeSession {
		t.Fatalf("expected default scope session, got %v", cfg.Scope)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutSec = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero timeout")
	}
}

func TestDeriveContainerNameDeterministic(t *testing.T) {
	a := DeriveContainerName("moltis-sandbox", ScopeSession, "session-123")
	b := DeriveContainerName("moltis-sandbox", ScopeSession, "session-123")
	if a != b {
		t.Fatalf("expected deterministic name, got %q vs %q", a, b)
	}

	c := DeriveContainerName("moltis-sandbox", ScopeSession, "session-456")
	if a == c {
		t.Fatal("expected different keys to derive different names")
	}
}

func TestScopeKey(t *testing.T) {
	if scopeKey(ScopeShared, "s1", "a1") != "shared" {
		t.Fatal("shared scope must collapse to a constant key")
	}
	if scopeKey(ScopeAgent, "s1", "a1") != "a1" {
		t.Fatal("agent scope must key off agent id")
	}
	if scopeKey(ScopeSession, "s1", "a1") != "s1" {
		t.Fatal("session scope must key off session id")
	}
}

func TestIdleSinceAndOverAge(t *testing.T) {
	if idleSince(time.Now(), 24) {
		t.Fatal("just-used sandbox should not be idle")
	}
	if !idleSince(time.Now().Add(-48*time.Hour), 24) {
		t.Fatal("sandbox unused for 48h should be idle at a 24h threshold")
	}
	if overAge(time.Now(), 7) {
		t.Fatal("freshly created sandbox should not be over age")
	}
	if !overAge(time.Now().Add(-10*24*time.Hour), 7) {
		t.Fatal("10-day-old sandbox should be over a 7-day age limit")
	}
}

func TestDisabledManagerAlwaysReturnsErrSandboxDisabled(t *testing.T) {
	mgr, err := NewManager(DefaultConfig())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	_, err = mgr.Get(context.Background(), "key", "/tmp")
	if err != ErrSandboxDisabled {
		t.Fatalf("expected ErrSandboxDisabled, got %v", err)
	}
}
