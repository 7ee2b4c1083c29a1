package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/jsdzhang/moltis/internal/access"
	"github.com/jsdzhang/moltis/internal/bus"
	"github.com/jsdzhang/moltis/internal/channels"
	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/store"
)

// telegramCreds maps the credentials JSON for a channel account record.
type telegramCreds struct {
	Token string `json:"token"`
}

// telegramInstanceConfig maps the non-secret config JSON for a channel
// account record.
type telegramInstanceConfig struct {
	Proxy           string   `json:"proxy,omitempty"`
	DMPolicy        string   `json:"dm_policy,omitempty"`
	GroupPolicy     string   `json:"group_policy,omitempty"`
	MentionMode     string   `json:"mention_mode,omitempty"`
	OtpSelfApproval *bool    `json:"otp_self_approval,omitempty"`
	AllowFrom       []string `json:"allow_from,omitempty"`
	RequireMention  *bool    `json:"require_mention,omitempty"`
	HistoryLimit    int      `json:"history_limit,omitempty"`
}

// Factory creates a Telegram channel from a channel account record.
func Factory(name string, creds json.RawMessage, cfg json.RawMessage,
	msgBus *bus.MessageBus, pairingSvc store.PairingStore, otpMgr *access.OTPManager) (channels.Channel, error) {

	var c telegramCreds
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &c); err != nil {
			return nil, fmt.Errorf("decode telegram credentials: %w", err)
		}
	}
	if c.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	var ic telegramInstanceConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &ic); err != nil {
			return nil, fmt.Errorf("decode telegram config: %w", err)
		}
	}

	tgCfg := config.TelegramConfig{
		Enabled:         true,
		Token:           c.Token,
		Proxy:           ic.Proxy,
		AllowFrom:       ic.AllowFrom,
		DMPolicy:        ic.DMPolicy,
		GroupPolicy:     ic.GroupPolicy,
		MentionMode:     ic.MentionMode,
		OtpSelfApproval: ic.OtpSelfApproval,
		RequireMention:  ic.RequireMention,
		HistoryLimit:    ic.HistoryLimit,
	}

	ch, err := New(tgCfg, msgBus, pairingSvc, otpMgr)
	if err != nil {
		return nil, err
	}

	ch.SetName(name)
	return ch, nil
}
