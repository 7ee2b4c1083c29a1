// Package coordination implements cross-session coordination: a shared,
// file-backed task list that multiple agent sessions can claim work from,
// a depth-limited sub-agent spawner, and inter-session messaging.
//
// Grounded on _examples/original_source/crates/tools/src/task_list.rs (the
// id→Task map + next-id counter, atomic Pending→InProgress claim enforcing
// blocked_by completion, and JSON file persistence) and on
// internal/tools/subagent_exec.go's runTask/executeTask shape for the
// sub-agent runner (spawn.go).
package coordination

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Task is one unit of work in a shared task list.
type Task struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	BlockedBy   []int    `json:"blockedBy,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	CreatedBy   string   `json:"createdBy,omitempty"`
}

// document is the on-disk shape, matching the original's id→Task map plus
// a monotonic id counter so ids are never reused within one list's lifetime.
type document struct {
	NextID int          `json:"nextId"`
	Tasks  map[int]*Task `json:"tasks"`
}

// List is a file-backed, mutex-guarded task list shared across sessions.
type List struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads path if it exists, or starts a fresh empty list if it doesn't.
func Open(path string) (*List, error) {
	l := &List{path: path, doc: document{NextID: 1, Tasks: make(map[int]*Task)}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.doc); err != nil {
		return nil, fmt.Errorf("parse task list %s: %w", path, err)
	}
	if l.doc.Tasks == nil {
		l.doc.Tasks = make(map[int]*Task)
	}
	return l, nil
}

func (l *List) saveLocked() error {
	data, err := json.MarshalIndent(l.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Create adds a new pending task and persists the list.
func (l *List) Create(title, description string, blockedBy []int, createdBy string) (*Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &Task{
		ID:          l.doc.NextID,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		BlockedBy:   blockedBy,
		CreatedBy:   createdBy,
	}
	l.doc.NextID++
	l.doc.Tasks[t.ID] = t
	if err := l.saveLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a copy of the task by id.
func (l *List) Get(id int) (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.doc.Tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// All returns a snapshot of all tasks.
func (l *List) All() []Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Task, 0, len(l.doc.Tasks))
	for _, t := range l.doc.Tasks {
		out = append(out, *t)
	}
	return out
}

// Update changes a task's mutable fields and persists the list.
func (l *List) Update(id int, mutate func(*Task)) (Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.doc.Tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %d not found", id)
	}
	mutate(t)
	if err := l.saveLocked(); err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Claim atomically transitions a pending task to in_progress under owner,
// refusing the claim if any of its blockedBy tasks haven't completed yet,
// or if the task isn't pending (already claimed, or no longer exists).
func (l *List) Claim(id int, owner string) (Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.doc.Tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %d not found", id)
	}
	if t.Status != StatusPending {
		return Task{}, fmt.Errorf("task %d is not pending (status=%s)", id, t.Status)
	}
	for _, depID := range t.BlockedBy {
		dep, ok := l.doc.Tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			return Task{}, fmt.Errorf("task %d is blocked by incomplete task %d", id, depID)
		}
	}

	t.Status = StatusInProgress
	t.Owner = owner
	if err := l.saveLocked(); err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Complete marks a task completed, regardless of current owner.
func (l *List) Complete(id int) (Task, error) {
	return l.Update(id, func(t *Task) { t.Status = StatusCompleted })
}
