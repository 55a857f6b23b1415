package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/core/encoding"
)

// ErrChainBroken indicates a stream whose hash chain does not verify.
var ErrChainBroken = errors.New("event hash chain is broken")

// hashInput is the part of an event covered by its content hash. Position is
// store-local and excluded.
type hashInput struct {
	ContestID      string          `json:"contest_id"`
	StreamType     StreamType      `json:"stream_type"`
	StreamID       string          `json:"stream_id"`
	ParentStreamID string          `json:"parent_stream_id,omitempty"`
	Version        uint64          `json:"version"`
	Type           Type            `json:"type"`
	Timestamp      string          `json:"timestamp"`
	ActorID        string          `json:"actor_id,omitempty"`
	TenantID       string          `json:"tenant_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// Seal assigns the content hash and links the event to prevChainHash. The
// event must already carry its stream version.
func Seal(evt Event, prevChainHash string) (Event, error) {
	hash, err := contentHash(evt)
	if err != nil {
		return Event{}, err
	}
	chain, err := encoding.ChainHash(prevChainHash, hash)
	if err != nil {
		return Event{}, fmt.Errorf("chain hash: %w", err)
	}
	evt.Hash = hash
	evt.PrevHash = prevChainHash
	evt.ChainHash = chain
	return evt, nil
}

// VerifyChain checks versions and hashes of one stream's events, in order.
func VerifyChain(events []Event) error {
	prev := ""
	for i, evt := range events {
		if evt.Version != uint64(i+1) {
			return fmt.Errorf("%w: stream %s expected version %d got %d", ErrChainBroken, evt.StreamID, i+1, evt.Version)
		}
		if err := VerifyLink(prev, evt); err != nil {
			return err
		}
		prev = evt.ChainHash
	}
	return nil
}

// VerifyLink checks that evt follows prevChainHash and that its hashes match
// its content.
func VerifyLink(prevChainHash string, evt Event) error {
	if evt.PrevHash != prevChainHash {
		return fmt.Errorf("%w: stream %s version %d prev hash mismatch", ErrChainBroken, evt.StreamID, evt.Version)
	}
	resealed, err := Seal(evt, prevChainHash)
	if err != nil {
		return err
	}
	if resealed.Hash != evt.Hash || resealed.ChainHash != evt.ChainHash {
		return fmt.Errorf("%w: stream %s version %d content mismatch", ErrChainBroken, evt.StreamID, evt.Version)
	}
	return nil
}

func contentHash(evt Event) (string, error) {
	payload := evt.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	hash, err := encoding.ContentHash(hashInput{
		ContestID:      evt.ContestID,
		StreamType:     evt.StreamType,
		StreamID:       evt.StreamID,
		ParentStreamID: evt.ParentStreamID,
		Version:        evt.Version,
		Type:           evt.Type,
		Timestamp:      evt.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:        evt.ActorID,
		TenantID:       evt.TenantID,
		Payload:        payload,
	})
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hash, nil
}
