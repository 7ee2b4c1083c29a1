package whatsapp

import (
	"encoding/json"
	"fmt"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/store"
)

// whatsappCreds maps the credentials JSON from the channel_instances table.
type whatsappCreds struct {
	BridgeURL string `json:"bridge_url"`
}

// whatsappInstanceConfig maps the non-secret config JSONB from the channel_instances table.
type whatsappInstanceConfig struct {
	DMPolicy        string   `json:"dm_policy,omitempty"`
	GroupPolicy     string   `json:"group_policy,omitempty"`
	MentionMode     string   `json:"mention_mode,omitempty"`
	OtpSelfApproval *bool    `json:"otp_self_approval,omitempty"`
	AllowFrom       []string `json:"allow_from,omitempty"`
}

// Factory creates a WhatsApp channel from DB instance data.
func Factory(name string, creds json.RawMessage, cfg json.RawMessage,
	msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) (channels.Channel, error) {

	var c whatsappCreds
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &c); err != nil {
			return nil, fmt.Errorf("decode whatsapp credentials: %w", err)
		}
	}
	if c.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	var ic whatsappInstanceConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &ic); err != nil {
			return nil, fmt.Errorf("decode whatsapp config: %w", err)
		}
	}

	waCfg := config.WhatsAppConfig{
		Enabled:         true,
		BridgeURL:       c.BridgeURL,
		AllowFrom:       ic.AllowFrom,
		DMPolicy:        ic.DMPolicy,
		GroupPolicy:     ic.GroupPolicy,
		MentionMode:     ic.MentionMode,
		OtpSelfApproval: ic.OtpSelfApproval,
	}

	ch, err := New(waCfg, msgBus, pairingSvc, otpMgr)
	if err != nil {
		return nil, err
	}

	ch.SetName(name)
	return ch, nil
}
