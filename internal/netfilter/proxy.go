package netfilter

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jsdzhang/moltis/internal/approval"
)

// Proxy is the HTTP CONNECT + forward proxy that every sandboxed tool call's
// outbound traffic is routed through, so it can be filtered and audited.
// It is only ever bound to a private-address listener (loopback/RFC1918/
// link-local/CGNAT/ULA) — see ListenPrivate.
type Proxy struct {
	Domains *Manager
	Audit   *AuditBuffer
	Approve *approval.Manager

	// ApprovalTimeout bounds how long a PendingApproval connection waits for
	// an operator decision before it's treated as denied.
	ApprovalTimeout time.Duration
}

// ListenPrivate binds addr, refusing to start unless its host is "localhost"
// or a literal private/loopback/link-local/CGNAT/ULA address — the proxy
// must never be reachable from the public internet. An empty host (which
// would bind every interface) and other hostnames are refused.
func ListenPrivate(addr string) (net.Listener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !isPrivateAddress(ip) {
			return nil, errInvalidBindAddress(host)
		}
	}
	return net.Listen("tcp", addr)
}

type errInvalidBindAddress string

func (e errInvalidBindAddress) Error() string {
	return "network audit proxy refuses to bind non-private address: " + string(e)
}

func isPrivateAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
		return true
	}
	// CGNAT range 100.64.0.0/10.
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 100 && ip4[1]&0xC0 == 0x40 {
			return true
		}
	}
	// ULA fc00::/7.
	if ip16 := ip.To16(); ip16 != nil && ip.To4() == nil {
		if ip16[0]&0xFE == 0xFC {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler, dispatching CONNECT (TLS tunnels) and
// plain forward-proxy requests.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.handleForward(w, r)
}

func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	host, portStr, err := net.SplitHostPort(r.Host)
	if err != nil {
		host, portStr = r.Host, "443"
	}
	port, _ := strconv.Atoi(portStr)

	decision := p.authorize(r.Context(), host, port)
	if decision != Allowed && decision != ApprovedByUser {
		http.Error(w, "domain not approved", http.StatusForbidden)
		return
	}

	target, err := net.DialTimeout("tcp", net.JoinHostPort(host, portStr), 10*time.Second)
	if err != nil {
		http.Error(w, "dial failed", http.StatusBadGateway)
		return
	}
	defer target.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijack unsupported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	defer clientConn.Close()

	clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))

	done := make(chan struct{}, 2)
	go func() { io.Copy(target, clientConn); done <- struct{}{} }()
	go func() { io.Copy(clientConn, target); done <- struct{}{} }()
	<-done
}

func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Hostname()
	port := 80
	if r.URL.Port() != "" {
		port, _ = strconv.Atoi(r.URL.Port())
	}

	decision := p.authorize(r.Context(), host, port)
	if decision != Allowed && decision != ApprovedByUser {
		http.Error(w, "domain not approved", http.StatusForbidden)
		return
	}

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""

	resp, err := http.DefaultTransport.RoundTrip(outReq)
	if err != nil {
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// authorize evaluates the domain manager's decision, drives an approval
// round trip for PendingApproval, and always records the final outcome to
// the audit buffer.
func (p *Proxy) authorize(ctx context.Context, host string, port int) Decision {
	decision := p.Domains.Evaluate(host)

	if decision == PendingApproval && p.Approve != nil {
		reqID := host + ":approval"
		if err := p.Approve.Request(reqID); err == nil {
			timeout := p.ApprovalTimeout
			if timeout <= 0 {
				timeout = 60 * time.Second
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			d, err := p.Approve.Wait(waitCtx, reqID)
			cancel()
			if err == nil && d.Approved {
				p.Domains.RecordApproval(host)
				decision = ApprovedByUser
			} else {
				decision = Denied
			}
		} else {
			decision = Denied
		}
	}

	if p.Audit != nil {
		p.Audit.Append(AuditEntry{Time: time.Now(), Host: strings.ToLower(host), Port: port, Decision: decision})
	}
	if decision == Denied {
		slog.Info("proxy denied connection", "host", host, "port", port)
	}
	return decision
}
