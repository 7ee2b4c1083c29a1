package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PairingRecord is one approved (or pending) device pairing.
type PairingRecord struct {
	UserID    string    `json:"userId"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chatId"`
	Scope     string    `json:"scope"`
	Code      string    `json:"code"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"createdAt"`
}

// PairingStore tracks unauthenticated channel senders awaiting operator
// approval. A pairing code is generated the first time an unpaired sender
// is seen and stays valid until the operator approves it (there is no
// expiry here, unlike the 5-minute OTP self-approval challenge of §4.2 —
// this is the slower, operator-in-the-loop onboarding path).
type PairingStore interface {
	// IsPaired reports whether userID has an approved pairing on channel.
	IsPaired(userID, channel string) bool
	// RequestPairing returns the pairing code for (userID, channel),
	// generating and persisting one on first contact. chatID and scope are
	// recorded so the operator can route an approval back to the right peer.
	RequestPairing(userID, channel, chatID, scope string) (code string, err error)
	// Approve marks the pairing identified by code as approved, returning
	// the record so callers (e.g. a CLI) can notify the right chat.
	Approve(code string) (PairingRecord, error)
	// Revoke removes the pairing record for (userID, channel), so a later
	// message from that sender starts a fresh pairing request.
	Revoke(userID, channel string) error
	// List returns all known pairing records (approved and pending).
	List() ([]PairingRecord, error)
}

// FilePairingStore is a JSON-file-backed PairingStore, grounded on
// internal/coordination.List's write-to-temp-then-rename persistence.
type FilePairingStore struct {
	mu   sync.Mutex
	path string
}

// NewFilePairingStore opens (or prepares to create) path as the pairing
// record store.
func NewFilePairingStore(path string) *FilePairingStore {
	return &FilePairingStore{path: path}
}

type pairingDocument struct {
	Records []PairingRecord `json:"records"`
}

func (s *FilePairingStore) load() (pairingDocument, error) {
	var doc pairingDocument
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse pairing store %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FilePairingStore) save(doc pairingDocument) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FilePairingStore) IsPaired(userID, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return false
	}
	for _, r := range doc.Records {
		if r.UserID == userID && r.Channel == channel && r.Approved {
			return true
		}
	}
	return false
}

func (s *FilePairingStore) RequestPairing(userID, channel, chatID, scope string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	for _, r := range doc.Records {
		if r.UserID == userID && r.Channel == channel {
			return r.Code, nil
		}
	}

	code, err := generatePairingCode()
	if err != nil {
		return "", err
	}
	doc.Records = append(doc.Records, PairingRecord{
		UserID:    userID,
		Channel:   channel,
		ChatID:    chatID,
		Scope:     scope,
		Code:      code,
		CreatedAt: time.Now(),
	})
	if err := s.save(doc); err != nil {
		return "", err
	}
	return code, nil
}

func (s *FilePairingStore) Approve(code string) (PairingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return PairingRecord{}, err
	}
	for i, r := range doc.Records {
		if r.Code == code {
			doc.Records[i].Approved = true
			if err := s.save(doc); err != nil {
				return PairingRecord{}, err
			}
			return doc.Records[i], nil
		}
	}
	return PairingRecord{}, fmt.Errorf("no pairing request with code %q", code)
}

func (s *FilePairingStore) Revoke(userID, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	kept := doc.Records[:0]
	found := false
	for _, r := range doc.Records {
		if r.UserID == userID && r.Channel == channel {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("no pairing record for user %q on channel %q", userID, channel)
	}
	doc.Records = kept
	return s.save(doc)
}

func (s *FilePairingStore) List() ([]PairingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
}

// generatePairingCode returns a 6-digit numeric code, matching the fixed
// "looks like OTP" shape the channel plugins' self-approval flow expects
// elsewhere in this codebase (exactly 6 ASCII digits).
func generatePairingCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) % 1_000_000
	return fmt.Sprintf("%06d", n), nil
}
