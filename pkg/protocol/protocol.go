// Package protocol defines the wire shapes for the Moltis WebSocket gateway
// protocol (v4, backward compatible with v3): request/response/event frames,
// error codes, and the feature catalogue exchanged at handshake.
package protocol

// ProtocolVersion is the version this gateway negotiates by default.
// v3 connect parameters are still accepted (see ConnectParamsV3).
const ProtocolVersion = 4

// MinSupportedVersion is the oldest connect version this gateway accepts.
const MinSupportedVersion = 3

// Wire-level constants (§6.1).
const (
	MaxPayloadBytes    = 524_288   // 512 KiB
	MaxBufferedBytes   = 1_572_864 // 1.5 MiB
	TickIntervalMS     = 30_000
	HandshakeTimeoutMS = 10_000
	DedupeTTLMS        = 300_000
	DedupeMaxEntries   = 1_000
)

// FrameType discriminates the three top-level frame variants.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Roles and scopes.
const (
	RoleOperator = "operator"
	RoleNode     = "node"

	ScopeAdmin     = "operator.admin" // wildcard: satisfies any required scope
	ScopeRead      = "operator.read"
	ScopeWrite     = "operator.write"
	ScopeApprovals = "operator.approvals"
	ScopePairing   = "operator.pairing"
)

// RequestFrame is sent client→gateway, and gateway→client for v4
// bidirectional RPC.
type RequestFrame struct {
	Type    string      `json:"type"` // always "req"
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	Channel string      `json:"channel,omitempty"`
}

// NewRequest builds a well-formed request frame.
func NewRequest(id, method string, params interface{}) RequestFrame {
	return RequestFrame{Type: FrameRequest, ID: id, Method: method, Params: params}
}

// ResponseFrame is sent gateway→client, and client→gateway for v4
// bidirectional RPC.
type ResponseFrame struct {
	Type    string      `json:"type"` // always "res"
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
	Channel string      `json:"channel,omitempty"`
}

// OKResponse builds a successful response frame.
func OKResponse(id string, payload interface{}) ResponseFrame {
	return ResponseFrame{Type: FrameResponse, ID: id, OK: true, Payload: payload}
}

// ErrResponse builds a failed response frame.
func ErrResponse(id string, err ErrorShape) ResponseFrame {
	return ResponseFrame{Type: FrameResponse, ID: id, OK: false, Error: &err}
}

// StateVersion carries monotonic counters for presence/health snapshots so
// clients can tell whether their cached copy is stale.
type StateVersion struct {
	Presence uint64 `json:"presence,omitempty"`
	Health   uint64 `json:"health,omitempty"`
}

// EventFrame is a server-push notification. Within one `Stream` group,
// exactly one event carries Done=true, and no further event shares that
// stream id afterward.
type EventFrame struct {
	Type         string        `json:"type"` // always "event"
	Event        string        `json:"event"`
	Payload      interface{}   `json:"payload,omitempty"`
	Seq          uint64        `json:"seq,omitempty"`
	StateVersion *StateVersion `json:"stateVersion,omitempty"`
	Stream       string        `json:"stream,omitempty"`
	Done         *bool         `json:"done,omitempty"`
	Channel      string        `json:"channel,omitempty"`
}

// NewEvent builds an event frame with no stream grouping.
func NewEvent(name string, payload interface{}) EventFrame {
	return EventFrame{Type: FrameEvent, Event: name, Payload: payload}
}

// ErrorShape is the structured error payload on a failed response frame.
type ErrorShape struct {
	Code         string      `json:"code"`
	Message      string      `json:"message"`
	Details      interface{} `json:"details,omitempty"`
	Retryable    *bool       `json:"retryable,omitempty"`
	RetryAfterMS uint64      `json:"retryAfterMs,omitempty"`
}

// NewError builds a minimal ErrorShape.
func NewError(code, message string) ErrorShape {
	return ErrorShape{Code: code, Message: message}
}

func (e ErrorShape) Error() string { return e.Code + ": " + e.Message }

// Error code constants (§6.1, §7).
const (
	ErrNotLinked        = "NOT_LINKED"
	ErrNotPaired        = "NOT_PAIRED"
	ErrAgentTimeout     = "AGENT_TIMEOUT"
	ErrInvalidRequest   = "INVALID_REQUEST"
	ErrUnavailable      = "UNAVAILABLE"
	ErrUnknownMethod    = "UNKNOWN_METHOD"
	ErrUnauthorized     = "UNAUTHORIZED"
	ErrForbidden        = "FORBIDDEN"
	ErrNotFound         = "NOT_FOUND"
	ErrConflict         = "CONFLICT"
	ErrRateLimited      = "RATE_LIMITED"
	ErrTimeout          = "TIMEOUT"
	ErrInternal         = "INTERNAL"
	ErrProtocolError    = "PROTOCOL_ERROR"
	ErrPayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

// ServerInfo identifies this gateway process to a newly connected client.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features is the method/event name catalogue returned at handshake.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// Policy mirrors the wire constants so clients can self-configure.
type Policy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
	TickIntervalMS   int `json:"tickIntervalMs"`
}

// DefaultPolicy returns the policy record sent in every HelloOk frame.
func DefaultPolicy() Policy {
	return Policy{
		MaxPayload:       MaxPayloadBytes,
		MaxBufferedBytes: MaxBufferedBytes,
		TickIntervalMS:   TickIntervalMS,
	}
}

// AuthInfo is the optional device auth block in HelloOk.
type AuthInfo struct {
	DeviceToken string   `json:"deviceToken"`
	Role        string   `json:"role"`
	Scopes      []string `json:"scopes"`
	IssuedAtMS  int64    `json:"issuedAtMs,omitempty"`
}

// HelloOkFrame is the handshake response.
type HelloOkFrame struct {
	Type          string                 `json:"type"` // always "hello-ok"
	Protocol      uint32                 `json:"protocol"`
	Server        ServerInfo             `json:"server"`
	Features      Features               `json:"features"`
	Snapshot      interface{}            `json:"snapshot,omitempty"`
	CanvasHostURL string                 `json:"canvasHostUrl,omitempty"`
	Auth          *AuthInfo              `json:"auth,omitempty"`
	Policy        Policy                 `json:"policy"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// ProtocolRange is the {min,max} version range offered at connect.
type ProtocolRange struct {
	Min uint32 `json:"min"`
	Max uint32 `json:"max"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// MoltisExtensions packs v4 namespaced fields carried under
// extensions.moltis in the v4 connect params.
type MoltisExtensions struct {
	Caps        []string          `json:"caps,omitempty"`
	Commands    []string          `json:"commands,omitempty"`
	PathEnv     string            `json:"pathEnv,omitempty"`
	Device      map[string]string `json:"device,omitempty"`
	Permissions map[string]bool   `json:"permissions,omitempty"`
	UserAgent   string            `json:"userAgent,omitempty"`
}

// ConnectParamsV4 is the v4 connect request shape.
type ConnectParamsV4 struct {
	Protocol   ProtocolRange          `json:"protocol"`
	Client     ClientInfo             `json:"client"`
	Role       string                 `json:"role,omitempty"`
	Scopes     []string               `json:"scopes,omitempty"`
	Auth       interface{}            `json:"auth,omitempty"`
	Locale     string                 `json:"locale,omitempty"`
	Timezone   string                 `json:"timezone,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// ConnectParamsV3 is the flat v3 connect request shape, still accepted.
type ConnectParamsV3 struct {
	MinProtocol uint32            `json:"minProtocol"`
	MaxProtocol uint32            `json:"maxProtocol"`
	Client      ClientInfo        `json:"client"`
	Caps        []string          `json:"caps,omitempty"`
	Commands    []string          `json:"commands,omitempty"`
	Permissions map[string]bool   `json:"permissions,omitempty"`
	PathEnv     string            `json:"pathEnv,omitempty"`
	Role        string            `json:"role,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Device      map[string]string `json:"device,omitempty"`
	Auth        interface{}       `json:"auth,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	UserAgent   string            `json:"userAgent,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
}

// ScopeSatisfies reports whether a held scope set satisfies a required
// scope. operator.admin is a wildcard that satisfies any requirement.
func ScopeSatisfies(held []string, required string) bool {
	if required == "" {
		return true
	}
	for _, s := range held {
		if s == ScopeAdmin || s == required {
			return true
		}
	}
	return false
}
