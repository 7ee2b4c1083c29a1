package gatewaydispatch

import (
	"encoding/json"
	"fmt"

	"github.com/jsdzhang/moltis/pkg/protocol"
)

// NegotiateVersion picks the protocol version to use given a client's
// advertised range, falling back to v3 semantics (flat ConnectParamsV3)
// when the client doesn't offer v4. Returns an error if the ranges don't
// overlap the server's supported [MinSupportedVersion, ProtocolVersion].
func NegotiateVersion(min, max uint32) (uint32, error) {
	if max == 0 {
		max = min
	}
	if max < protocol.MinSupportedVersion || min > protocol.ProtocolVersion {
		return 0, fmt.Errorf("no overlapping protocol version: client [%d,%d], server [%d,%d]",
			min, max, protocol.MinSupportedVersion, protocol.ProtocolVersion)
	}
	negotiated := protocol.ProtocolVersion
	if max < negotiated {
		negotiated = max
	}
	return negotiated, nil
}

// ParseConnectParams decodes raw connect params as v4 first, falling back
// to the flat v3 shape when the v4 "protocol" field is absent — matching
// the spec's "v4 connect is backward compatible with v3" requirement.
func ParseConnectParams(raw json.RawMessage) (protocol.ConnectParamsV4, uint32, error) {
	var v4 protocol.ConnectParamsV4
	if err := json.Unmarshal(raw, &v4); err == nil && (v4.Protocol.Min != 0 || v4.Protocol.Max != 0) {
		return v4, 4, nil
	}

	var v3 protocol.ConnectParamsV3
	if err := json.Unmarshal(raw, &v3); err != nil {
		return protocol.ConnectParamsV4{}, 0, fmt.Errorf("invalid connect params: %w", err)
	}
	return protocol.ConnectParamsV4{
		Protocol:   protocol.ProtocolRange{Min: v3.MinProtocol, Max: v3.MaxProtocol},
		Client:     v3.Client,
		Role:       v3.Role,
		Scopes:     v3.Scopes,
		Auth:       v3.Auth,
		Locale:     v3.Locale,
		Timezone:   v3.Timezone,
		Extensions: map[string]any{"moltis": protocol.MoltisExtensions{
			Caps:        v3.Caps,
			Commands:    v3.Commands,
			PathEnv:     v3.PathEnv,
			Device:      v3.Device,
			Permissions: v3.Permissions,
			UserAgent:   v3.UserAgent,
		}},
	}, 3, nil
}

// BuildHelloOk assembles the handshake response for a newly connected and
// negotiated client.
func (d *Dispatcher) BuildHelloOk(connID string, negotiated uint32, auth *protocol.AuthInfo) protocol.HelloOkFrame {
	return protocol.HelloOkFrame{
		Type:     "hello-ok",
		Protocol: negotiated,
		Server: protocol.ServerInfo{
			Version: "4.0.0",
			ConnID:  connID,
		},
		Features: d.Features(),
		Auth:     auth,
		Policy:   protocol.DefaultPolicy(),
	}
}
