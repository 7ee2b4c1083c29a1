package wasmhost

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPRequest/HTTPResponse mirror the http-tool WIT world's
// outgoing-handler request/response shapes.
type HTTPRequest struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            []byte
	TimeoutMS       *uint32
	MaxResponseBytes *uint64
}

type HTTPResponse struct {
	Status      uint16
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// HTTPError is the discriminated error variant the WIT world exposes to
// guests: InvalidUrl, BlockedUrl, Timeout, Network, Status(code),
// TooLarge(limit), or Other.
type HTTPError struct {
	Kind    string
	Message string
	Status  uint16
	Limit   uint64
}

func (e *HTTPError) Error() string { return e.Kind + ": " + e.Message }

func invalidURL(msg string) *HTTPError { return &HTTPError{Kind: "InvalidUrl", Message: msg} }
func blockedURL(msg string) *HTTPError { return &HTTPError{Kind: "BlockedUrl", Message: msg} }

// SecretHeaders maps a lowercase host to headers the host injects on
// every outgoing request to that host, keeping API keys out of guest
// parameters entirely. Host headers always win over guest-supplied ones.
type SecretHeaders map[string][]Header

type Header struct{ Name, Value string }

// HTTPHostConfig configures one HTTPHost instance.
type HTTPHostConfig struct {
	Timeout           time.Duration
	MaxResponseBytes  int64
	SSRFAllowlist     []*net.IPNet
	DomainAllowlist   []string // nil = allow all hosts (still SSRF-checked)
	SecretHeaders     SecretHeaders
}

// HTTPHost is the host-side implementation of an http-tool component's
// imported outgoing-handler capability.
type HTTPHost struct {
	client          *http.Client
	maxResponse     int64
	domainAllowlist map[string]bool
	ssrfAllowlist   []*net.IPNet
	secretHeaders   SecretHeaders
}

// NewHTTPHost builds an HTTPHost. Redirects are never followed: a guest
// that wants to chase a redirect must issue a fresh request itself, which
// keeps every hop subject to the same domain/SSRF checks.
func NewHTTPHost(cfg HTTPHostConfig) *HTTPHost {
	allow := map[string]bool(nil)
	if cfg.DomainAllowlist != nil {
		allow = make(map[string]bool, len(cfg.DomainAllowlist))
		for _, d := range cfg.DomainAllowlist {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				allow[d] = true
			}
		}
	}

	return &HTTPHost{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		maxResponse:     cfg.MaxResponseBytes,
		domainAllowlist: allow,
		ssrfAllowlist:   cfg.SSRFAllowlist,
		secretHeaders:   cfg.SecretHeaders,
	}
}

func (h *HTTPHost) domainAllowed(host string) bool {
	if h.domainAllowlist == nil {
		return true
	}
	host = strings.ToLower(host)
	for allowed := range h.domainAllowlist {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Handle services one guest-initiated HTTP request under the host's
// domain allowlist, SSRF guard, secret-header injection, and body cap.
func (h *HTTPHost) Handle(req HTTPRequest) (HTTPResponse, *HTTPError) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return HTTPResponse{}, invalidURL(err.Error())
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return HTTPResponse{}, invalidURL("unsupported URL scheme: " + parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return HTTPResponse{}, invalidURL("URL has no host")
	}
	if !h.domainAllowed(host) {
		return HTTPResponse{}, blockedURL("host `" + host + "` is not in domain allowlist")
	}
	if err := ssrfCheck(host, h.ssrfAllowlist); err != nil {
		return HTTPResponse{}, blockedURL(err.Error())
	}

	injected := h.secretHeaders[strings.ToLower(host)]
	injectedNames := make(map[string]bool, len(injected))
	for _, hdr := range injected {
		injectedNames[strings.ToLower(hdr.Name)] = true
	}

	httpReq, err := http.NewRequest(req.Method, parsed.String(), bytesReader(req.Body))
	if err != nil {
		return HTTPResponse{}, &HTTPError{Kind: "Other", Message: err.Error()}
	}
	for name, value := range req.Headers {
		if injectedNames[strings.ToLower(name)] {
			continue // host-injected header always wins
		}
		httpReq.Header.Set(name, value)
	}
	for _, hdr := range injected {
		httpReq.Header.Set(hdr.Name, hdr.Value)
	}

	client := h.client
	if req.TimeoutMS != nil {
		c := *h.client
		c.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
		client = &c
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return HTTPResponse{}, &HTTPError{Kind: "Timeout", Message: err.Error()}
		}
		return HTTPResponse{}, &HTTPError{Kind: "Network", Message: err.Error()}
	}
	defer resp.Body.Close()

	limit := h.maxResponse
	if req.MaxResponseBytes != nil && int64(*req.MaxResponseBytes) < limit {
		limit = int64(*req.MaxResponseBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return HTTPResponse{}, &HTTPError{Kind: "Network", Message: err.Error()}
	}
	if int64(len(body)) > limit {
		return HTTPResponse{}, &HTTPError{Kind: "TooLarge", Limit: uint64(limit)}
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return HTTPResponse{
		Status:      uint16(resp.StatusCode),
		Headers:     headers,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return &byteReader{b: b}
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
