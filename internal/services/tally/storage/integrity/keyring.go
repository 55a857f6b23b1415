package integrity

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

// ErrSignatureMismatch indicates an event whose signature does not verify.
var ErrSignatureMismatch = errors.New("event signature mismatch")

// Keyring stores root HMAC keys and the id used for new signatures.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active hmac key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id %s is not configured", activeKeyID)
	}
	return &Keyring{keys: keys, activeKeyID: activeKeyID}, nil
}

// ParseKeyring reads keys written as "id=secret" pairs separated by commas.
// An empty spec yields a nil keyring, which leaves events unsigned.
func ParseKeyring(spec, activeKeyID string) (*Keyring, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	keys := make(map[string][]byte)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, secret, ok := strings.Cut(entry, "=")
		id, secret = strings.TrimSpace(id), strings.TrimSpace(secret)
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("invalid hmac key entry %q", entry)
		}
		keys[id] = []byte(secret)
	}
	if strings.TrimSpace(activeKeyID) == "" && len(keys) == 1 {
		for id := range keys {
			activeKeyID = id
		}
	}
	return NewKeyring(keys, activeKeyID)
}

// ActiveKeyID returns the signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// Sign sets the event's signature over its chain hash.
func (k *Keyring) Sign(evt event.Event) (event.Event, error) {
	if k == nil {
		return evt, nil
	}
	key, err := contestKey(k.keys[k.activeKeyID], evt.ContestID)
	if err != nil {
		return event.Event{}, err
	}
	evt.Signature = hmacSHA256Hex(key, evt.ChainHash)
	evt.SignatureKeyID = k.activeKeyID
	return evt, nil
}

// Verify checks the event's signature. Events signed with retired keys
// verify as long as the key is still configured.
func (k *Keyring) Verify(evt event.Event) error {
	if k == nil {
		return nil
	}
	keyID := strings.TrimSpace(evt.SignatureKeyID)
	if keyID == "" {
		return fmt.Errorf("%w: stream %s version %d is unsigned", ErrSignatureMismatch, evt.StreamID, evt.Version)
	}
	rootKey, ok := k.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: unknown key id %s", ErrSignatureMismatch, keyID)
	}
	key, err := contestKey(rootKey, evt.ContestID)
	if err != nil {
		return err
	}
	expected := hmacSHA256Hex(key, evt.ChainHash)
	if !hmac.Equal([]byte(expected), []byte(evt.Signature)) {
		return fmt.Errorf("%w: stream %s version %d", ErrSignatureMismatch, evt.StreamID, evt.Version)
	}
	return nil
}

func contestKey(rootKey []byte, contestID string) ([]byte, error) {
	contestID = strings.TrimSpace(contestID)
	if contestID == "" {
		return nil, fmt.Errorf("contest id is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "contest:"+contestID, 32)
	if err != nil {
		return nil, fmt.Errorf("derive contest key: %w", err)
	}
	return key, nil
}

func hmacSHA256Hex(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
