package event

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

func sealedStream(t *testing.T, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	prev := ""
	for i := 0; i < n; i++ {
		evt, err := Seal(Event{
			ContestID:   "contest-1",
			StreamType:  StreamUnitResult,
			StreamID:    "result-1",
			Version:     uint64(i + 1),
			Type:        "unit_result.started",
			Timestamp:   time.Date(2026, 3, 8, 12, i, 0, 0, time.UTC),
			PayloadJSON: []byte(`{}`),
		}, prev)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		prev = evt.ChainHash
		events = append(events, evt)
	}
	return events
}

func TestVerifyChainAcceptsSealedStream(t *testing.T) {
	if err := VerifyChain(sealedStream(t, 3)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	events := sealedStream(t, 3)
	events[1].PayloadJSON = []byte(`{"forged":true}`)
	if err := VerifyChain(events); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("err = %v, want ErrChainBroken", err)
	}
}

func TestVerifyChainDetectsGap(t *testing.T) {
	events := sealedStream(t, 3)
	if err := VerifyChain([]Event{events[0], events[2]}); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("err = %v, want ErrChainBroken", err)
	}
}

func TestSealIgnoresPosition(t *testing.T) {
	events := sealedStream(t, 1)
	moved := events[0]
	moved.Position = 42
	resealed, err := Seal(moved, "")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if resealed.Hash != events[0].Hash {
		t.Fatal("expected position to be excluded from the content hash")
	}
}

func TestVersionConflictCarriesVersions(t *testing.T) {
	err := VersionConflict("stream-1", 2, 3)
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %T, want domain error", err)
	}
	if domainErr.Code != apperrors.CodeConcurrencyConflict {
		t.Fatalf("code = %s", domainErr.Code)
	}
	if domainErr.Metadata[apperrors.MetaExpectedVersion] != "2" || domainErr.Metadata[apperrors.MetaActualVersion] != "3" {
		t.Fatalf("metadata = %v", domainErr.Metadata)
	}
}
