package wasmhost

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func loopbackAllowlist(t *testing.T) []*net.IPNet {
	t.Helper()
	_, v4, err := net.ParseCIDR("127.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}
	_, v6, err := net.ParseCIDR("::1/128")
	if err != nil {
		t.Fatal(err)
	}
	return []*net.IPNet{v4, v6}
}

func TestHTTPHostBlockedUrlScheme(t *testing.T) {
	host := NewHTTPHost(HTTPHostConfig{Timeout: time.Second, MaxResponseBytes: 1024})
	_, err := host.Handle(HTTPRequest{Method: "GET", URL: "ftp://example.com"})
	if err == nil || err.Kind != "InvalidUrl" {
		t.Fatalf("expected InvalidUrl, got %+v", err)
	}
}

func TestHTTPHostDomainNotAllowed(t *testing.T) {
	host := NewHTTPHost(HTTPHostConfig{
		Timeout:          time.Second,
		MaxResponseBytes: 1024,
		DomainAllowlist:  []string{"example.com"},
	})
	_, err := host.Handle(HTTPRequest{Method: "GET", URL: "https://evil.test/"})
	if err == nil || err.Kind != "BlockedUrl" {
		t.Fatalf("expected BlockedUrl, got %+v", err)
	}
}

func TestHTTPHostAppliesSecretHeaderOverGuestHeader(t *testing.T) {
	var gotAuth, gotX string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotX = r.Header.Get("X-Guest")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	host := NewHTTPHost(HTTPHostConfig{
		Timeout:          time.Second,
		MaxResponseBytes: 1024,
		SSRFAllowlist:    loopbackAllowlist(t),
		SecretHeaders: SecretHeaders{
			"127.0.0.1": {{Name: "Authorization", Value: "Bearer secret"}},
		},
	})

	resp, err := host.Handle(HTTPRequest{
		Method:  "GET",
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer guest-supplied", "X-Guest": "yes"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("got status %d", resp.Status)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected host secret header to win, got %q", gotAuth)
	}
	if gotX != "yes" {
		t.Fatalf("expected non-colliding guest header through, got %q", gotX)
	}
}

func TestHTTPHostBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	host := NewHTTPHost(HTTPHostConfig{Timeout: time.Second, MaxResponseBytes: 10, SSRFAllowlist: loopbackAllowlist(t)})
	_, err := host.Handle(HTTPRequest{Method: "GET", URL: srv.URL})
	if err == nil || err.Kind != "TooLarge" {
		t.Fatalf("expected TooLarge, got %+v", err)
	}
}
