package wasmhost

import (
	"net"
	"testing"
)

func TestIsRestrictedAddress(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1":    true,
		"10.0.0.5":     true,
		"172.16.0.1":   true,
		"192.168.1.1":  true,
		"169.254.1.1":  true,
		"100.64.0.1":   true,
		"8.8.8.8":      false,
		"1.1.1.1":      false,
		"fc00::1":      true,
		"2001:4860::1": false,
	}
	for addr, want := range cases {
		ip := net.ParseIP(addr)
		if got := isRestrictedAddress(ip); got != want {
			t.Errorf("isRestrictedAddress(%s) = %v, want %v", addr, got, want)
		}
	}
}

func TestIPAllowedOverridesRestriction(t *testing.T) {
	_, cidr, _ := net.ParseCIDR("10.0.0.0/8")
	ip := net.ParseIP("10.1.2.3")
	if !ipAllowed(ip, []*net.IPNet{cidr}) {
		t.Fatal("expected ip to be covered by explicit allowlist")
	}
	if ipAllowed(net.ParseIP("192.168.1.1"), []*net.IPNet{cidr}) {
		t.Fatal("unrelated ip should not be allowed by unrelated cidr")
	}
}
