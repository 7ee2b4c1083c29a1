package channelrouter

import (
	"errors"
	"testing"
)

type memStore struct {
	records []AccountRecord
}

func (m *memStore) List() ([]AccountRecord, error) { return m.records, nil }
func (m *memStore) Upsert(rec AccountRecord) error {
	for i, r := range m.records {
		if r.ChannelType == rec.ChannelType && r.AccountID == rec.AccountID {
			m.records[i] = rec
			return nil
		}
	}
	m.records = append(m.records, rec)
	return nil
}
func (m *memStore) Delete(channelType, accountID string) error {
	out := m.records[:0]
	for _, r := range m.records {
		if r.ChannelType == channelType && r.AccountID == accountID {
			continue
		}
		out = append(out, r)
	}
	m.records = out
	return nil
}

func TestResolveChannelTypeExplicitWins(t *testing.T) {
	r, err := NewRouter(&memStore{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.ResolveChannelType("discord", "acct1", "telegram")
	if err != nil || got != "discord" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestResolveChannelTypeSingleLivePlugin(t *testing.T) {
	r, err := NewRouter(&memStore{})
	if err != nil {
		t.Fatal(err)
	}
	r.MarkLive("discord", "acct1", true)

	got, err := r.ResolveChannelType("", "acct1", "telegram")
	if err != nil || got != "discord" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestResolveChannelTypeAmbiguousLiveIsError(t *testing.T) {
	r, err := NewRouter(&memStore{})
	if err != nil {
		t.Fatal(err)
	}
	r.MarkLive("discord", "acct1", true)
	r.MarkLive("telegram", "acct1", true)

	_, err = r.ResolveChannelType("", "acct1", "whatsapp")
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestResolveChannelTypeFallsBackToStoredRecord(t *testing.T) {
	store := &memStore{records: []AccountRecord{{ChannelType: "whatsapp", AccountID: "acct1"}}}
	r, err := NewRouter(store)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.ResolveChannelType("", "acct1", "telegram")
	if err != nil || got != "whatsapp" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestResolveChannelTypeAmbiguousStoredIsError(t *testing.T) {
	store := &memStore{records: []AccountRecord{
		{ChannelType: "whatsapp", AccountID: "acct1"},
		{ChannelType: "discord", AccountID: "acct1"},
	}}
	r, err := NewRouter(store)
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.ResolveChannelType("", "acct1", "telegram")
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestResolveChannelTypeFallsBackToDefault(t *testing.T) {
	r, err := NewRouter(&memStore{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.ResolveChannelType("", "acct-unknown", "telegram")
	if err != nil || got != "telegram" {
		t.Fatalf("got %q, %v", got, err)
	}
}
