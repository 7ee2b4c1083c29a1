package channelrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AccountRecord is the persisted record for one channel account.
type AccountRecord struct {
	ChannelType string          `json:"channelType"`
	AccountID   string          `json:"accountId"`
	AgentKey    string          `json:"agentKey"`
	Credentials json.RawMessage `json:"credentials"`
	Config      json.RawMessage `json:"config"`
	Enabled     bool            `json:"enabled"`
}

func (r AccountRecord) key() accountKey { return accountKey{r.ChannelType, r.AccountID} }

// AccountStore persists channel account records. The file-backed
// implementation below is the default; a database-backed one could satisfy
// the same interface without touching Manager.
type AccountStore interface {
	List() ([]AccountRecord, error)
	Upsert(rec AccountRecord) error
	Delete(channelType, accountID string) error
}

// Plugin is the lifecycle surface a channel implementation exposes to the
// account manager: start/stop the live connection, and a best-effort config
// hot-update.
type Plugin interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	UpdateConfig(cfg json.RawMessage) error
}

// PluginFactory builds a Plugin from a persisted account record.
type PluginFactory func(rec AccountRecord) (Plugin, error)

// Manager owns account lifecycle operations {add, update, remove, logout},
// starting/stopping plugins and upserting/deleting the persistent record.
// The store write and the plugin start/stop are separate steps, so a
// concurrent status read (Router.Get, List) can see one without the other.
type Manager struct {
	mu       sync.Mutex
	router   *Router
	store    AccountStore
	factory  map[string]PluginFactory // channelType -> factory
	running  map[accountKey]Plugin
}

// NewManager builds an account lifecycle manager over router and store.
func NewManager(router *Router, store AccountStore) *Manager {
	return &Manager{
		router:  router,
		store:   store,
		factory: make(map[string]PluginFactory),
		running: make(map[accountKey]Plugin),
	}
}

// RegisterFactory associates a channel type with the factory used to build
// its live plugin on Add/Update/LoadAll.
func (m *Manager) RegisterFactory(channelType string, f PluginFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factory[channelType] = f
}

// ListAccounts returns every persisted account record, for the
// channels.instances.list RPC method.
func (m *Manager) ListAccounts() ([]AccountRecord, error) {
	return m.store.List()
}

// LoadAll starts a plugin for every enabled persisted record. Used at
// startup, after NewRouter has already replayed records into its account map.
func (m *Manager) LoadAll(ctx context.Context) error {
	records, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list account records: %w", err)
	}
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		if err := m.start(ctx, rec); err != nil {
			slog.Error("channel account failed to start", "type", rec.ChannelType, "account", rec.AccountID, "error", err)
		}
	}
	return nil
}

func (m *Manager) start(ctx context.Context, rec AccountRecord) error {
	m.mu.Lock()
	f, ok := m.factory[rec.ChannelType]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no plugin factory registered for channel type %q", rec.ChannelType)
	}

	plugin, err := f(rec)
	if err != nil {
		return fmt.Errorf("build plugin: %w", err)
	}
	if err := plugin.Start(ctx); err != nil {
		return fmt.Errorf("start plugin: %w", err)
	}

	m.mu.Lock()
	m.running[rec.key()] = plugin
	m.mu.Unlock()
	m.router.MarkLive(rec.ChannelType, rec.AccountID, true)
	return nil
}

func (m *Manager) stop(ctx context.Context, rec AccountRecord) error {
	m.mu.Lock()
	plugin, ok := m.running[rec.key()]
	delete(m.running, rec.key())
	m.mu.Unlock()

	m.router.MarkLive(rec.ChannelType, rec.AccountID, false)
	if !ok {
		return nil
	}
	return plugin.Stop(ctx)
}

// Add persists a new account record and starts its plugin. The lock covers
// only the persistence write; the plugin start and the router/running-map
// update follow after it, so a concurrent status read can observe a
// persisted account whose plugin is not live yet.
func (m *Manager) Add(ctx context.Context, rec AccountRecord) error {
	m.mu.Lock()
	if err := m.store.Upsert(rec); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist account: %w", err)
	}
	m.mu.Unlock()

	if !rec.Enabled {
		return nil
	}
	return m.start(ctx, rec)
}

// Update performs stop-then-start: the old plugin is stopped, the new
// record persisted, and a fresh plugin started from it. If only config
// changed and the running plugin exists, callers may prefer HotUpdateConfig
// instead to avoid the connection bounce.
func (m *Manager) Update(ctx context.Context, rec AccountRecord) error {
	if err := m.stop(ctx, rec); err != nil {
		slog.Warn("channel account stop-before-update failed", "type", rec.ChannelType, "account", rec.AccountID, "error", err)
	}

	m.mu.Lock()
	err := m.store.Upsert(rec)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist account: %w", err)
	}

	if !rec.Enabled {
		return nil
	}
	return m.start(ctx, rec)
}

// HotUpdateConfig pushes a config change to a running plugin without
// restarting it. Per spec this is best-effort: failures are logged, never
// returned to the caller.
func (m *Manager) HotUpdateConfig(channelType, accountID string, cfg json.RawMessage) {
	m.mu.Lock()
	plugin, ok := m.running[accountKey{channelType, accountID}]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := plugin.UpdateConfig(cfg); err != nil {
		slog.Warn("channel account config hot-update failed", "type", channelType, "account", accountID, "error", err)
	}
}

// Remove stops the plugin (if running) and deletes the persisted record.
func (m *Manager) Remove(ctx context.Context, channelType, accountID string) error {
	if err := m.stop(ctx, AccountRecord{ChannelType: channelType, AccountID: accountID}); err != nil {
		slog.Warn("channel account stop-before-remove failed", "type", channelType, "account", accountID, "error", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(channelType, accountID)
}

// Logout stops the plugin and clears credentials but keeps the record (and
// its config) so the account can be re-paired without reconfiguring.
func (m *Manager) Logout(ctx context.Context, channelType, accountID string) error {
	if err := m.stop(ctx, AccountRecord{ChannelType: channelType, AccountID: accountID}); err != nil {
		slog.Warn("channel account stop-before-logout failed", "type", channelType, "account", accountID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list account records: %w", err)
	}
	for _, rec := range records {
		if rec.ChannelType == channelType && rec.AccountID == accountID {
			rec.Credentials = nil
			rec.Enabled = false
			return m.store.Upsert(rec)
		}
	}
	return nil
}

// --- file-backed AccountStore ---

type fileDocument struct {
	Accounts []AccountRecord `json:"accounts"`
}

// FileAccountStore persists account records as a single JSON file, written
// via write-to-temp-then-rename for crash safety (mirrors
// internal/coordination.List's on-disk discipline).
type FileAccountStore struct {
	mu   sync.Mutex
	path string
}

// NewFileAccountStore opens (or prepares to create) path as the backing
// store for channel account records.
func NewFileAccountStore(path string) *FileAccountStore {
	return &FileAccountStore{path: path}
}

func (s *FileAccountStore) load() (fileDocument, error) {
	var doc fileDocument
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
		return doc, fmt.Errorf("parse account store %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileAccountStore) save(doc fileDocument) error {
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

// List returns all persisted account records.
func (s *FileAccountStore) List() ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

// Upsert inserts or replaces the record matching (ChannelType, AccountID).
func (s *FileAccountStore) Upsert(rec AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i, existing := range doc.Accounts {
		if existing.ChannelType == rec.ChannelType && existing.AccountID == rec.AccountID {
			doc.Accounts[i] = rec
			return s.save(doc)
		}
	}
	doc.Accounts = append(doc.Accounts, rec)
	return s.save(doc)
}

// Delete removes the record matching (channelType, accountID), if present.
func (s *FileAccountStore) Delete(channelType, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	out := doc.Accounts[:0]
	for _, existing := range doc.Accounts {
		if existing.ChannelType == channelType && existing.AccountID == accountID {
			continue
		}
		out = append(out, existing)
	}
	doc.Accounts = out
	return s.save(doc)
}
