package wasmhost

import (
	"fmt"
	"net"
)

// ssrfCheck resolves host and rejects any resolved address that falls in
// a private/loopback/link-local/unique-local range unless it is also
// covered by an explicitly configured allowlist entry. The allowlist
// defaults to empty, so by default no internal address is reachable from
// a guest's http-tool capability no matter what the guest requests.
func ssrfCheck(host string, allowlist []*net.IPNet) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("could not resolve host %q: %w", host, err)
	}

	for _, ip := range ips {
		if isRestrictedAddress(ip) && !ipAllowed(ip, allowlist) {
			return fmt.Errorf("resolved address %s for host %q is not permitted", ip, host)
		}
	}
	return nil
}

func ipAllowed(ip net.IP, allowlist []*net.IPNet) bool {
	for _, n := range allowlist {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func isRestrictedAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		// CGNAT range 100.64.0.0/10
		if v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127 {
			return true
		}
	} else if ip[0] == 0xfc || ip[0] == 0xfd {
		// IPv6 ULA fc00::/7
		return true
	}
	return false
}
