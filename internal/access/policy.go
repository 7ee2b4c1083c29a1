// Package access implements the channel access policy described in the
// gateway's channel layer: DM/group gating, mention-mode filtering, and
// an allowlist matcher shared across all channel plugins.
//
// This generalizes internal/channels.BaseChannel's CheckPolicy/IsAllowed
// into a standalone, per-channel-instance policy object so the gateway
// dispatch layer and the channel plugins share one implementation.
package access

import "strings"

// DMPolicy controls how direct messages from unrecognised senders are handled.
type DMPolicy string

const (
	DMPolicyDisabled  DMPolicy = "disabled"
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyAllowlist DMPolicy = "allowlist"
)

// GroupPolicy controls how group/channel messages are handled.
type GroupPolicy string

const (
	GroupPolicyDisabled  GroupPolicy = "disabled"
	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
)

// MentionMode controls when a group message is treated as addressed to the
// agent rather than ignored as ambient chatter.
type MentionMode string

const (
	MentionModeAlways MentionMode = "always"
	MentionModeMention MentionMode = "mention"
	MentionModeNone    MentionMode = "none"
)

// PeerKind distinguishes direct-message peers from group peers.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// Policy is the resolved access policy for one channel instance.
type Policy struct {
	DM          DMPolicy
	Group       GroupPolicy
	Mention     MentionMode
	AllowList   []string
	BotUsername string
}

// normalizedAllowList lowercases entries once so matching is case-insensitive
// without re-lowering on every check.
func (p Policy) normalizedAllowList() []string {
	out := make([]string, len(p.AllowList))
	for i, a := range p.AllowList {
		out[i] = strings.ToLower(strings.TrimPrefix(a, "@"))
	}
	return out
}

// IsAllowed reports whether senderID (optionally compound "id|username")
// matches the allowlist. An empty allowlist allows everyone; matching is
// case-insensitive on both id and username parts.
func (p Policy) IsAllowed(senderID string) bool {
	if len(p.AllowList) == 0 {
		return true
	}

	idPart, userPart := splitCompound(senderID)
	idPart = strings.ToLower(idPart)
	userPart = strings.ToLower(userPart)

	for _, allowed := range p.normalizedAllowList() {
		allowedID, allowedUser := splitCompound(allowed)
		switch {
		case idPart != "" && idPart == allowedID:
			return true
		case idPart != "" && allowedUser != "" && idPart == allowedUser:
			return true
		case userPart != "" && userPart == allowedUser:
			return true
		case userPart != "" && userPart == allowedID:
			return true
		case allowed == strings.ToLower(senderID):
			return true
		}
	}
	return false
}

func splitCompound(s string) (id, user string) {
	if idx := strings.IndexByte(s, '|'); idx > 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// DenyReason names why Check rejected a message. The zero value (DenyNone)
// means the message was accepted.
type DenyReason string

const (
	DenyNone                DenyReason = ""
	DenyDmsDisabled         DenyReason = "dms_disabled"
	DenyNotOnAllowlist      DenyReason = "not_on_allowlist"
	DenyGuildsDisabled      DenyReason = "guilds_disabled"
	DenyGuildNotOnAllowlist DenyReason = "guild_not_on_allowlist"
	DenyMentionModeNone     DenyReason = "mention_mode_none"
	DenyNotMentioned        DenyReason = "not_mentioned"
)

// Check evaluates whether an inbound message should be accepted, given its
// peer kind, sender, and whether the agent was mentioned in a group message.
// It returns a typed DenyReason rather than a bare bool so a caller can tell
// "sender not on a DM allowlist" (which should trigger the OTP self-approval
// flow, see otp.go) apart from every other rejection, and so the reason can
// be logged or surfaced without re-deriving it from Policy's fields.
func (p Policy) Check(kind PeerKind, senderID string, mentioned bool) (bool, DenyReason) {
	if kind == PeerGroup {
		switch p.Group {
		case GroupPolicyDisabled:
			return false, DenyGuildsDisabled
		case GroupPolicyAllowlist:
			if !p.IsAllowed(senderID) {
				return false, DenyGuildNotOnAllowlist
			}
		}
		return p.mentionGate(mentioned)
	}

	switch p.DM {
	case DMPolicyDisabled:
		return false, DenyDmsDisabled
	case DMPolicyAllowlist:
		if !p.IsAllowed(senderID) {
			return false, DenyNotOnAllowlist
		}
		return true, DenyNone
	default: // open
		return true, DenyNone
	}
}

// CheckMention applies the mention-mode gate in isolation, for callers that
// already ran the allowlist/disabled half of Check and need to decide
// separately whether to record-only or forward a group message.
func (p Policy) CheckMention(mentioned bool) (bool, DenyReason) {
	return p.mentionGate(mentioned)
}

func (p Policy) mentionGate(mentioned bool) (bool, DenyReason) {
	switch p.Mention {
	case MentionModeAlways:
		return true, DenyNone
	case MentionModeNone:
		return false, DenyMentionModeNone
	default: // mention
		if !mentioned {
			return false, DenyNotMentioned
		}
		return true, DenyNone
	}
}

// Mentioned reports whether text references the bot by @username (case
// insensitive) or, for platforms without an @handle concept, the caller
// should pass a pre-computed reply/mention flag instead.
func Mentioned(text, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(botUsername))
}
