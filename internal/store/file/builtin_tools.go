package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jsdzhang/moltis/internal/store"
)

// BuiltinToolStore is a JSON-file-backed store.BuiltinToolStore. Seed is
// idempotent and preserves an operator's Enabled/Settings overrides across
// restarts: a def already on file keeps its Enabled/Settings, everything
// else (display name, description, category, requires) is refreshed from
// the seed list so code changes stay in sync.
type BuiltinToolStore struct {
	mu   sync.Mutex
	path string
}

// NewBuiltinToolStore opens (or prepares to create) path as the builtin
// tool settings store.
func NewBuiltinToolStore(path string) *BuiltinToolStore {
	return &BuiltinToolStore{path: path}
}

type builtinToolDocument struct {
	Tools []store.BuiltinToolDef `json:"tools"`
}

func (s *BuiltinToolStore) load() (builtinToolDocument, error) {
	var doc builtinToolDocument
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse builtin tool store %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *BuiltinToolStore) save(doc builtinToolDocument) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *BuiltinToolStore) List(ctx context.Context) ([]store.BuiltinToolDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Tools, nil
}

func (s *BuiltinToolStore) ListEnabled(ctx context.Context) ([]store.BuiltinToolDef, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.BuiltinToolDef
	for _, t := range all {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *BuiltinToolStore) Get(ctx context.Context, name string) (*store.BuiltinToolDef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Tools {
		if doc.Tools[i].Name == name {
			return &doc.Tools[i], nil
		}
	}
	return nil, fmt.Errorf("no builtin tool named %q", name)
}

func (s *BuiltinToolStore) GetSettings(ctx context.Context, name string) (json.RawMessage, error) {
	t, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.Settings, nil
}

func (s *BuiltinToolStore) Update(ctx context.Context, name string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Tools {
		if doc.Tools[i].Name != name {
			continue
		}
		if v, ok := updates["enabled"].(bool); ok {
			doc.Tools[i].Enabled = v
		}
		if v, ok := updates["settings"]; ok {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal settings for %q: %w", name, err)
			}
			doc.Tools[i].Settings = raw
		}
		doc.Tools[i].UpdatedAt = time.Now()
		return s.save(doc)
	}
	return fmt.Errorf("no builtin tool named %q", name)
}

func (s *BuiltinToolStore) Seed(ctx context.Context, tools []store.BuiltinToolDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}

	existing := make(map[string]store.BuiltinToolDef, len(doc.Tools))
	for _, t := range doc.Tools {
		existing[t.Name] = t
	}

	now := time.Now()
	merged := make([]store.BuiltinToolDef, 0, len(tools))
	for _, seed := range tools {
		if prior, ok := existing[seed.Name]; ok {
			seed.Enabled = prior.Enabled
			seed.Settings = prior.Settings
			seed.CreatedAt = prior.CreatedAt
		} else {
			seed.CreatedAt = now
		}
		seed.UpdatedAt = now
		merged = append(merged, seed)
	}
	doc.Tools = merged
	return s.save(doc)
}
