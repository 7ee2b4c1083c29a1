package netfilter

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAuditBufferWrapsAndOrders(t *testing.T) {
	b, err := NewAuditBuffer(3, "")
	if err != nil {
		t.Fatalf("NewAuditBuffer: %v", err)
	}
	for i, host := range []string{"a.com", "b.com", "c.com", "d.com"} {
		b.Append(AuditEntry{Time: time.Now(), Host: host, Decision: Allowed})
		_ = i
	}
	recent := b.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected ring buffer capped at 3, got %d", len(recent))
	}
	if recent[len(recent)-1].Host != "d.com" {
		t.Fatalf("expected most recent entry last, got %+v", recent)
	}
	if recent[0].Host == "a.com" {
		t.Fatal("oldest entry should have been evicted")
	}
}

func TestAuditBufferJSONLPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	b, err := NewAuditBuffer(10, path)
	if err != nil {
		t.Fatalf("NewAuditBuffer: %v", err)
	}
	b.Append(AuditEntry{Host: "example.com", Decision: Allowed})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAuditBufferStats(t *testing.T) {
	b, _ := NewAuditBuffer(100, "")
	b.Append(AuditEntry{Host: "a.com", Decision: Allowed})
	b.Append(AuditEntry{Host: "a.com", Decision: Allowed})
	b.Append(AuditEntry{Host: "b.com", Decision: Denied})

	stats := b.Stats()
	if stats.Allowed != 2 || stats.Denied != 1 {
		t.Fatalf("got %+v", stats)
	}
	if len(stats.TopDomains) == 0 || stats.TopDomains[0].Host != "a.com" {
		t.Fatalf("expected a.com to top the domain count, got %+v", stats.TopDomains)
	}
}

func TestAuditBufferSubscribe(t *testing.T) {
	b, _ := NewAuditBuffer(10, "")
	ch := b.Subscribe("sub-1")
	b.Append(AuditEntry{Host: "x.com", Decision: Allowed})

	select {
	case e := <-ch:
		if e.Host != "x.com" {
			t.Fatalf("got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to receive appended entry")
	}
	b.Unsubscribe("sub-1")
}
