package discord

import (
	"encoding/json"
	"fmt"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/store"
)

// discordCreds maps the credentials JSON from the channel_instances table.
type discordCreds struct {
	Token string `json:"token"`
}

// discordInstanceConfig maps the non-secret config JSONB from the channel_instances table.
type discordInstanceConfig struct {
	DMPolicy        string   `json:"dm_policy,omitempty"`
	GroupPolicy     string   `json:"group_policy,omitempty"`
	MentionMode     string   `json:"mention_mode,omitempty"`
	OtpSelfApproval *bool    `json:"otp_self_approval,omitempty"`
	AllowFrom       []string `json:"allow_from,omitempty"`
	RequireMention  *bool    `json:"require_mention,omitempty"`
	HistoryLimit    int      `json:"history_limit,omitempty"`
}

// Factory creates a Discord channel from DB instance data.
func Factory(name string, creds json.RawMessage, cfg json.RawMessage,
	msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) (channels.Channel, error) {

	var c discordCreds
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &c); err != nil {
			return nil, fmt.Errorf("decode discord credentials: %w", err)
		}
	}
	if c.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	var ic discordInstanceConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &ic); err != nil {
			return nil, fmt.Errorf("decode discord config: %w", err)
		}
	}

	dcCfg := config.DiscordConfig{
		Enabled:         true,
		Token:           c.Token,
		AllowFrom:       ic.AllowFrom,
		DMPolicy:        ic.DMPolicy,
		GroupPolicy:     ic.GroupPolicy,
		MentionMode:     ic.MentionMode,
		OtpSelfApproval: ic.OtpSelfApproval,
		RequireMention:  ic.RequireMention,
		HistoryLimit:    ic.HistoryLimit,
	}

	ch, err := New(dcCfg, msgBus, pairingSvc, otpMgr)
	if err != nil {
		return nil, err
	}

	ch.SetName(name)
	return ch, nil
}
