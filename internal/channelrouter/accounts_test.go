package channelrouter

import (
	"context"
	"encoding/json"
	"testing"
)

type fakePlugin struct {
	started, stopped int
	lastCfg          json.RawMessage
	startErr         error
}

func (f *fakePlugin) Start(ctx context.Context) error {
	f.started++
	return f.startErr
}
func (f *fakePlugin) Stop(ctx context.Context) error {
	f.stopped++
	return nil
}
func (f *fakePlugin) UpdateConfig(cfg json.RawMessage) error {
	f.lastCfg = cfg
	return nil
}

func TestManagerAddStartsPlugin(t *testing.T) {
	plugin := &fakePlugin{}
	store := &memStore{}
	router, _ := NewRouter(store)
	mgr := NewManager(router, store)
	mgr.RegisterFactory("discord", func(rec AccountRecord) (Plugin, error) { return plugin, nil })

	rec := AccountRecord{ChannelType: "discord", AccountID: "acct1", Enabled: true}
	if err := mgr.Add(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if plugin.started != 1 {
		t.Fatalf("expected plugin started once, got %d", plugin.started)
	}
	if live := router.LiveTypesForAccount("acct1"); len(live) != 1 || live[0] != "discord" {
		t.Fatalf("expected router to mark account live, got %v", live)
	}
}

func TestManagerUpdateStopsThenStarts(t *testing.T) {
	plugin := &fakePlugin{}
	store := &memStore{}
	router, _ := NewRouter(store)
	mgr := NewManager(router, store)
	mgr.RegisterFactory("discord", func(rec AccountRecord) (Plugin, error) { return plugin, nil })

	rec := AccountRecord{ChannelType: "discord", AccountID: "acct1", Enabled: true}
	mgr.Add(context.Background(), rec)

	if err := mgr.Update(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if plugin.stopped != 1 || plugin.started != 2 {
		t.Fatalf("expected one stop and two starts, got stopped=%d started=%d", plugin.stopped, plugin.started)
	}
}

func TestManagerRemoveDeletesRecordAndStopsPlugin(t *testing.T) {
	plugin := &fakePlugin{}
	store := &memStore{}
	router, _ := NewRouter(store)
	mgr := NewManager(router, store)
	mgr.RegisterFactory("discord", func(rec AccountRecord) (Plugin, error) { return plugin, nil })

	rec := AccountRecord{ChannelType: "discord", AccountID: "acct1", Enabled: true}
	mgr.Add(context.Background(), rec)

	if err := mgr.Remove(context.Background(), "discord", "acct1"); err != nil {
		t.Fatal(err)
	}
	if plugin.stopped != 1 {
		t.Fatalf("expected plugin stopped, got %d", plugin.stopped)
	}
	records, _ := store.List()
	if len(records) != 0 {
		t.Fatalf("expected record deleted, got %v", records)
	}
}

func TestManagerLogoutClearsCredentialsKeepsRecord(t *testing.T) {
	plugin := &fakePlugin{}
	store := &memStore{}
	router, _ := NewRouter(store)
	mgr := NewManager(router, store)
	mgr.RegisterFactory("discord", func(rec AccountRecord) (Plugin, error) { return plugin, nil })

	rec := AccountRecord{ChannelType: "discord", AccountID: "acct1", Enabled: true, Credentials: json.RawMessage(`{"token":"x"}`)}
	mgr.Add(context.Background(), rec)

	if err := mgr.Logout(context.Background(), "discord", "acct1"); err != nil {
		t.Fatal(err)
	}
	records, _ := store.List()
	if len(records) != 1 {
		t.Fatalf("expected record kept, got %v", records)
	}
	if records[0].Credentials != nil || records[0].Enabled {
		t.Fatalf("expected credentials cleared and disabled, got %+v", records[0])
	}
}
