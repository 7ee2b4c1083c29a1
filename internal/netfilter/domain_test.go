package netfilter

import "testing"

func TestParseDomainPattern(t *testing.T) {
	cases := []struct {
		raw  string
		kind PatternKind
		host string
	}{
		{"example.com", PatternExact, "example.com"},
		{"*.example.com", PatternWildcardSubdomain, "example.com"},
		{"*", PatternWildcard, ""},
	}
	for _, c := range cases {
		p := ParseDomainPattern(c.raw)
		if p.Kind != c.kind || p.Host != c.host {
			t.Errorf("ParseDomainPattern(%q) = %+v", c.raw, p)
		}
	}
}

func TestDomainPatternMatches(t *testing.T) {
	sub := ParseDomainPattern("*.example.com")
	if sub.Matches("example.com") {
		t.Fatal("wildcard-subdomain must not match the bare apex domain")
	}
	if !sub.Matches("api.example.com") {
		t.Fatal("wildcard-subdomain must match a subdomain")
	}

	exact := ParseDomainPattern("example.com")
	if !exact.Matches("EXAMPLE.com") {
		t.Fatal("exact match must be case-insensitive")
	}
	if exact.Matches("api.example.com") {
		t.Fatal("exact pattern must not match subdomains")
	}

	wild := ParseDomainPattern("*")
	if !wild.Matches("anything.at.all") {
		t.Fatal("wildcard must match anything")
	}
}

func TestManagerEmptyAllowlistAllowsAll(t *testing.T) {
	m := NewManager(Config{})
	if m.Evaluate("evil.example") != Allowed {
		t.Fatal("empty allowlist must be allow-all/audit-only")
	}
}

func TestManagerStaticAllowlist(t *testing.T) {
	m := NewManager(Config{Allowlist: []string{"*.good.com"}})
	if m.Evaluate("api.good.com") != Allowed {
		t.Fatal("expected allowlisted subdomain to be allowed")
	}
	if m.Evaluate("evil.com") != Denied {
		t.Fatal("expected non-matching host to be denied by default")
	}
}

func TestManagerRequireApprovalForUnknown(t *testing.T) {
	m := NewManager(Config{Allowlist: []string{"good.com"}, RequireApprovalForUnknown: true})
	if m.Evaluate("unknown.com") != PendingApproval {
		t.Fatal("expected unknown host to require approval")
	}
	m.RecordApproval("unknown.com")
	if m.Evaluate("unknown.com") != ApprovedByUser {
		t.Fatal("expected session-approved host to be remembered")
	}
}

func TestManagerTrustedDomains(t *testing.T) {
	m := NewManager(Config{Allowlist: []string{"good.com"}, RequireApprovalForUnknown: true})
	m.AddTrustedDomain("trusted.com")
	if m.Evaluate("trusted.com") != ApprovedByUser {
		t.Fatal("expected trusted domain to be approved without a prompt")
	}
	list := m.ListTrustedDomains()
	if len(list) != 1 || list[0] != "trusted.com" {
		t.Fatalf("got %+v", list)
	}
	m.RemoveTrustedDomain("trusted.com")
	if m.Evaluate("trusted.com") != PendingApproval {
		t.Fatal("expected untrusted domain to require approval again")
	}
}
