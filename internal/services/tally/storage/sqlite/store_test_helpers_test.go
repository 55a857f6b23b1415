package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
)

func testKeyring(t *testing.T) *integrity.Keyring {
	t.Helper()
	keyring, err := integrity.NewKeyring(
		map[string][]byte{"test-key-1": []byte("0123456789abcdef0123456789abcdef")},
		"test-key-1",
	)
	if err != nil {
		t.Fatalf("create test keyring: %v", err)
	}
	return keyring
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.sqlite")
	store, err := Open(path, testKeyring(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func testEvent(contestID, streamID string, version uint64) event.Event {
	return event.Event{
		ContestID:      contestID,
		StreamType:     event.StreamBundle,
		StreamID:       streamID,
		ParentStreamID: "result-1",
		ItemID:         "item-1",
		UnitID:         "unit-1",
		Version:        version,
		Type:           "bundle.created",
		Timestamp:      time.Date(2026, 6, 14, 10, 0, 0, 987654321, time.UTC),
		ActorID:        "user-1",
		TenantID:       "tenant-1",
		RequestID:      "req-1",
		PayloadJSON:    []byte(`{"number":1}`),
	}
}

func asError(err error, target **apperrors.Error) bool {
	return errors.As(err, target)
}
