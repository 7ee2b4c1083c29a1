package access

import "testing"

func TestPolicyIsAllowedCompound(t *testing.T) {
	p := Policy{AllowList: []string{"123|alice", "@bob"}}

	cases := []struct {
		sender string
		want   bool
	}{
		{"123", true},
		{"alice", true},
		{"123|alice", true},
		{"bob", true},
		{"999|carol", false},
		{"", false},
	}
	for _, c := range cases {
		if got := p.IsAllowed(c.sender); got != c.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", c.sender, got, c.want)
		}
	}
}

func TestPolicyIsAllowedEmptyAllowsAll(t *testing.T) {
	p := Policy{}
	if !p.IsAllowed("anyone") {
		t.Fatal("empty allowlist must allow all senders")
	}
}

func TestPolicyCheckDM(t *testing.T) {
	p := Policy{DM: DMPolicyDisabled}
	if ok, reason := p.Check(PeerDirect, "123", false); ok || reason != DenyDmsDisabled {
		t.Fatalf("disabled DM policy must reject with DenyDmsDisabled, got ok=%v reason=%v", ok, reason)
	}

	p = Policy{DM: DMPolicyAllowlist, AllowList: []string{"123"}}
	if ok, reason := p.Check(PeerDirect, "123", false); !ok || reason != DenyNone {
		t.Fatalf("allowlisted sender must be accepted, got ok=%v reason=%v", ok, reason)
	}
	if ok, reason := p.Check(PeerDirect, "999", false); ok || reason != DenyNotOnAllowlist {
		t.Fatalf("non-allowlisted sender must be rejected with DenyNotOnAllowlist, got ok=%v reason=%v", ok, reason)
	}
}

func TestPolicyCheckGroupMentionGate(t *testing.T) {
	p := Policy{Group: GroupPolicyOpen, Mention: MentionModeMention}
	if ok, reason := p.Check(PeerGroup, "123", false); ok || reason != DenyNotMentioned {
		t.Fatalf("mention-gated group message without mention must be rejected with DenyNotMentioned, got ok=%v reason=%v", ok, reason)
	}
	if ok, reason := p.Check(PeerGroup, "123", true); !ok || reason != DenyNone {
		t.Fatalf("mention-gated group message with mention must be accepted, got ok=%v reason=%v", ok, reason)
	}

	p.Mention = MentionModeAlways
	if ok, reason := p.Check(PeerGroup, "123", false); !ok || reason != DenyNone {
		t.Fatalf("always mode must accept regardless of mention, got ok=%v reason=%v", ok, reason)
	}

	p.Mention = MentionModeNone
	if ok, reason := p.Check(PeerGroup, "123", true); ok || reason != DenyMentionModeNone {
		t.Fatalf("none mode must reject even when mentioned, got ok=%v reason=%v", ok, reason)
	}
}

func TestPolicyCheckGroupDisabled(t *testing.T) {
	p := Policy{Group: GroupPolicyDisabled}
	if ok, reason := p.Check(PeerGroup, "123", true); ok || reason != DenyGuildsDisabled {
		t.Fatalf("disabled group policy must reject unconditionally, got ok=%v reason=%v", ok, reason)
	}
}

func TestMentionedCaseInsensitive(t *testing.T) {
	if !Mentioned("hey @MoltisBot help", "moltisbot") {
		t.Fatal("expected case-insensitive mention match")
	}
	if Mentioned("no mention here", "moltisbot") {
		t.Fatal("unexpected mention match")
	}
}
