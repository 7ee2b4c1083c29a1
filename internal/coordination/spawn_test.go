package coordination

import (
	"context"
	"strings"
	"testing"
)

func TestSpawnEnforcesDepthLimit(t *testing.T) {
	calls := 0
	var s *Spawner
	s = NewSpawner(func(ctx context.Context, req SpawnRequest) (string, error) {
		calls++
		return s.Spawn(ctx, req)
	})

	_, err := s.Spawn(context.Background(), SpawnRequest{Depth: 0, Task: "root"})
	if err == nil {
		t.Fatal("expected recursive spawn to eventually hit the depth limit")
	}
	if !strings.Contains(err.Error(), "nesting depth") {
		t.Fatalf("expected error to mention nesting depth, got %q", err.Error())
	}
	if calls > MaxSpawnDepth {
		t.Fatalf("expected at most %d recursive calls, got %d", MaxSpawnDepth, calls)
	}
}

func TestSpawnAllowsWithinDepth(t *testing.T) {
	s := NewSpawner(func(ctx context.Context, req SpawnRequest) (string, error) {
		return "done: " + req.Task, nil
	})
	out, err := s.Spawn(context.Background(), SpawnRequest{Depth: 0, Task: "hello"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if out != "done: hello" {
		t.Fatalf("got %q", out)
	}
}

func TestResolveAllowedTools(t *testing.T) {
	all := []string{"shell", "read_file", "web_search", "delegate"}

	got := ResolveAllowedTools(all, []string{"shell", "read_file"}, []string{"shell"})
	want := []string{"read_file"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("got %+v", got)
	}

	// Empty allowlist means "no restriction beyond deny".
	got = ResolveAllowedTools(all, nil, []string{"shell"})
	if len(got) != 3 {
		t.Fatalf("got %+v", got)
	}
}
