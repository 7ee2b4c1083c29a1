// Package channelrouter resolves which messaging-channel plugin owns a given
// account and manages the lifecycle of channel account registrations
// (add/update/remove/logout).
//
// Grounded on internal/channels/manager.go's single-registry-of-live-plugins
// shape, generalized to the (channel_type, account_id) keying the original
// Rust source's channel router uses, and on internal/coordination/tasklist.go's
// atomic-rename JSON persistence pattern for the on-disk account record.
package channelrouter

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAmbiguous is returned by ResolveChannelType when more than one live
// plugin or stored record matches an account with no explicit type given.
// Spec names this a FailedPrecondition.
var ErrAmbiguous = errors.New("failed_precondition: ambiguous channel type for account")

// LiveLookup reports which channel types currently hold a live plugin for
// the given account id. Implemented by Router's own registry in normal use;
// split out as an interface so resolution logic is independently testable.
type LiveLookup interface {
	LiveTypesForAccount(accountID string) []string
}

// Router maintains (channelType, accountID) -> AccountState and a
// reverse accountID -> channelType index for fast disambiguation.
type Router struct {
	mu       sync.RWMutex
	accounts map[accountKey]*AccountState // (type, id) -> state
	byID     map[string]map[string]bool   // accountID -> set of channel types holding a live plugin

	store AccountStore
}

type accountKey struct {
	channelType string
	accountID   string
}

// AccountState is the router's in-memory view of one channel account.
type AccountState struct {
	ChannelType string
	AccountID   string
	Running     bool
}

// NewRouter builds a router backed by store, replaying any persisted records
// into the account-state map (but not starting plugins — callers start
// each account explicitly via the channel loader).
func NewRouter(store AccountStore) (*Router, error) {
	r := &Router{
		accounts: make(map[accountKey]*AccountState),
		byID:     make(map[string]map[string]bool),
		store:    store,
	}
	records, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("list account records: %w", err)
	}
	for _, rec := range records {
		r.accounts[accountKey{rec.ChannelType, rec.AccountID}] = &AccountState{
			ChannelType: rec.ChannelType,
			AccountID:   rec.AccountID,
		}
	}
	return r, nil
}

// MarkLive records that a plugin for (channelType, accountID) is live (or
// not), updating the reverse index used by step 2 of ResolveChannelType.
func (r *Router) MarkLive(channelType, accountID string, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := accountKey{channelType, accountID}
	st, ok := r.accounts[key]
	if !ok {
		st = &AccountState{ChannelType: channelType, AccountID: accountID}
		r.accounts[key] = st
	}
	st.Running = live

	set, ok := r.byID[accountID]
	if !ok {
		set = make(map[string]bool)
		r.byID[accountID] = set
	}
	if live {
		set[channelType] = true
	} else {
		delete(set, channelType)
		if len(set) == 0 {
			delete(r.byID, accountID)
		}
	}
}

// LiveTypesForAccount returns the channel types currently holding a live
// plugin for accountID, for use by ResolveChannelType step 2.
func (r *Router) LiveTypesForAccount(accountID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byID[accountID]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// storedTypesForAccount returns the channel types with a persisted record
// for accountID, regardless of whether a plugin is currently live.
func (r *Router) storedTypesForAccount(accountID string) ([]string, error) {
	records, err := r.store.List()
	if err != nil {
		return nil, fmt.Errorf("list account records: %w", err)
	}
	var out []string
	for _, rec := range records {
		if rec.AccountID == accountID {
			out = append(out, rec.ChannelType)
		}
	}
	return out, nil
}

// ResolveChannelType implements the spec's four-step disambiguation:
//  1. explicit type in params wins immediately,
//  2. else exactly one live plugin holding the account wins,
//  3. else exactly one stored record for the account wins,
//  4. else the caller-supplied default.
//
// Multiple matches at step 2 or 3 with no explicit type is an error
// (ErrAmbiguous), never a silent fall-through to the next step.
func (r *Router) ResolveChannelType(explicitType, accountID, def string) (string, error) {
	if explicitType != "" {
		return explicitType, nil
	}

	if live := r.LiveTypesForAccount(accountID); len(live) > 0 {
		if len(live) > 1 {
			return "", fmt.Errorf("%w: account %q is live on channels %v", ErrAmbiguous, accountID, live)
		}
		return live[0], nil
	}

	stored, err := r.storedTypesForAccount(accountID)
	if err != nil {
		return "", err
	}
	if len(stored) > 0 {
		if len(stored) > 1 {
			return "", fmt.Errorf("%w: account %q has stored records on channels %v", ErrAmbiguous, accountID, stored)
		}
		return stored[0], nil
	}

	return def, nil
}

// Get returns the current state for (channelType, accountID), if known.
func (r *Router) Get(channelType, accountID string) (AccountState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.accounts[accountKey{channelType, accountID}]
	if !ok {
		return AccountState{}, false
	}
	return *st, true
}
