package channels

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channelrouter"
	"github.com/jsdzhang/moltis/internal/store"
)

// ChannelFactory creates a Channel from an account record's credentials and
// config. name becomes the channel's registered name (used in session keys).
// otpMgr is the gateway-wide self-approval manager (§4.2) shared by every
// channel instance so an operator can revoke a pending challenge by channel
// name and sender ID regardless of which plugin issued it.
type ChannelFactory func(name string, creds json.RawMessage, cfg json.RawMessage,
	msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) (Channel, error)

// InstanceLoader bridges channelrouter.Manager's generic account lifecycle
// (start/stop/config-hot-update, backed by an AccountStore) to this
// package's Channel interface and its single Manager registry.
type InstanceLoader struct {
	accounts   *channelrouter.Manager
	manager    *Manager
	msgBus     *bus.MessageBus
	pairingSvc store.PairingStore
	otpMgr     *access.OTPManager
	mu         sync.Mutex
	loaded     map[string]struct{} // channel names currently registered with manager
}

// NewInstanceLoader creates a new InstanceLoader over accounts.
func NewInstanceLoader(accounts *channelrouter.Manager, mgr *Manager, msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) *InstanceLoader {
	return &InstanceLoader{
		accounts:   accounts,
		manager:    mgr,
		msgBus:     msgBus,
		pairingSvc: pairingSvc,
		otpMgr:     otpMgr,
		loaded:     make(map[string]struct{}),
	}
}

// channelPlugin adapts a Channel to channelrouter.Plugin, keeping the
// Manager registry in sync with the account's running state.
type channelPlugin struct {
	loader *InstanceLoader
	name   string
	ch     Channel
}

func (p *channelPlugin) Start(ctx context.Context) error {
	p.loader.manager.RegisterChannel(p.name, p.ch)
	p.loader.mu.Lock()
	p.loader.loaded[p.name] = struct{}{}
	p.loader.mu.Unlock()
	return p.ch.Start(ctx)
}

func (p *channelPlugin) Stop(ctx context.Context) error {
	err := p.ch.Stop(ctx)
	p.loader.manager.UnregisterChannel(p.name)
	p.loader.mu.Lock()
	delete(p.loader.loaded, p.name)
	p.loader.mu.Unlock()
	return err
}

func (p *channelPlugin) UpdateConfig(cfg json.RawMessage) error {
	if updater, ok := p.ch.(interface{ UpdateConfig(json.RawMessage) error }); ok {
		return updater.UpdateConfig(cfg)
	}
	return nil
}

// RegisterFactory registers a factory for a channel type (e.g. "telegram",
// "discord") by wrapping it as a channelrouter.PluginFactory on the
// underlying account manager.
func (l *InstanceLoader) RegisterFactory(channelType string, factory ChannelFactory) {
	l.accounts.RegisterFactory(channelType, func(rec channelrouter.AccountRecord) (channelrouter.Plugin, error) {
		ch, err := factory(rec.AccountID, rec.Credentials, rec.Config, l.msgBus, l.pairingSvc, l.otpMgr)
		if err != nil {
			return nil, err
		}
		if base, ok := ch.(interface{ SetAgentID(string) }); ok && rec.AgentKey != "" {
			base.SetAgentID(rec.AgentKey)
		}
		return &channelPlugin{loader: l, name: rec.AccountID, ch: ch}, nil
	})
}

// LoadAll starts every enabled account.
func (l *InstanceLoader) LoadAll(ctx context.Context) error {
	return l.accounts.LoadAll(ctx)
}

// Reload stops all currently loaded channels and restarts them from the
// account store, with a brief pause so external APIs (e.g. Telegram long
// polling) release any connection lock before reconnecting.
func (l *InstanceLoader) Reload(ctx context.Context) {
	l.mu.Lock()
	names := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		names = append(names, name)
	}
	l.mu.Unlock()

	for _, name := range names {
		if ch, ok := l.manager.GetChannel(name); ok {
			if err := ch.Stop(ctx); err != nil {
				slog.Warn("failed to stop channel instance on reload", "name", name, "error", err)
			}
		}
		l.manager.UnregisterChannel(name)
	}
	l.mu.Lock()
	l.loaded = make(map[string]struct{})
	l.mu.Unlock()

	time.Sleep(500 * time.Millisecond)

	if err := l.accounts.LoadAll(ctx); err != nil {
		slog.Error("failed to reload channel accounts", "error", err)
	}
}

// Stop stops all managed channels.
func (l *InstanceLoader) Stop(ctx context.Context) {
	l.mu.Lock()
	names := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		names = append(names, name)
	}
	l.loaded = make(map[string]struct{})
	l.mu.Unlock()

	for _, name := range names {
		if ch, ok := l.manager.GetChannel(name); ok {
			if err := ch.Stop(ctx); err != nil {
				slog.Warn("failed to stop channel instance", "name", name, "error", err)
			}
		}
		l.manager.UnregisterChannel(name)
	}
}

// LoadedNames returns the set of channel names managed by the loader.
func (l *InstanceLoader) LoadedNames() map[string]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make(map[string]struct{}, len(l.loaded))
	for k, v := range l.loaded {
		result[k] = v
	}
	return result
}
