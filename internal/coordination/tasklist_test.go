package coordination

import (
	"path/filepath"
	"testing"
)

func newTestList(t *testing.T) *List {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestCreateAndClaim(t *testing.T) {
	l := newTestList(t)
	task, err := l.Create("build it", "", nil, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != StatusPending {
		t.Fatalf("got status %q", task.Status)
	}

	claimed, err := l.Claim(task.ID, "bob")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != StatusInProgress || claimed.Owner != "bob" {
		t.Fatalf("got %+v", claimed)
	}
}

func TestClaimRejectsAlreadyClaimed(t *testing.T) {
	l := newTestList(t)
	task, _ := l.Create("x", "", nil, "alice")
	if _, err := l.Claim(task.ID, "bob"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := l.Claim(task.ID, "carol"); err == nil {
		t.Fatal("expected second claim to fail")
	}
}

func TestClaimRespectsBlockedBy(t *testing.T) {
	l := newTestList(t)
	dep, _ := l.Create("dependency", "", nil, "alice")
	task, _ := l.Create("dependent", "", []int{dep.ID}, "alice")

	if _, err := l.Claim(task.ID, "bob"); err == nil {
		t.Fatal("expected claim to fail while dependency is incomplete")
	}

	if _, err := l.Claim(dep.ID, "bob"); err != nil {
		t.Fatalf("claim dep: %v", err)
	}
	if _, err := l.Complete(dep.ID); err != nil {
		t.Fatalf("complete dep: %v", err)
	}
	if _, err := l.Claim(task.ID, "bob"); err != nil {
		t.Fatalf("expected claim to succeed once dependency completed: %v", err)
	}
}

func TestListPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l1.Create("persisted task", "", nil, "alice"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	all := l2.All()
	if len(all) != 1 || all[0].Title != "persisted task" {
		t.Fatalf("got %+v", all)
	}
}
