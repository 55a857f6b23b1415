package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
)

type streamEntry struct {
	mu     sync.Mutex
	record storage.StreamRecord
	events []event.Event
}

type contestLog struct {
	mu     sync.RWMutex
	events []event.Event
}

// EventStore keeps streams in memory.
type EventStore struct {
	streams  sync.Map // stream id -> *streamEntry
	contests sync.Map // contest id -> *contestLog
	position atomic.Uint64
	keyring  *integrity.Keyring
}

// NewEventStore builds an empty event store. A nil keyring leaves events
// unsigned.
func NewEventStore(keyring *integrity.Keyring) *EventStore {
	return &EventStore{keyring: keyring}
}

func (s *EventStore) stream(streamID string) *streamEntry {
	entry, _ := s.streams.LoadOrStore(streamID, &streamEntry{})
	return entry.(*streamEntry)
}

func (s *EventStore) contest(contestID string) *contestLog {
	log, _ := s.contests.LoadOrStore(contestID, &contestLog{})
	return log.(*contestLog)
}

// AppendEvents appends events when the stream is at expectedVersion.
func (s *EventStore) AppendEvents(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	entry := s.stream(streamID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	actual := uint64(len(entry.events))
	if actual != expectedVersion {
		return nil, event.VersionConflict(streamID, expectedVersion, actual)
	}
	contestID := events[0].ContestID
	prev := entry.record.ChainHash
	sealed := make([]event.Event, 0, len(events))
	for i, evt := range events {
		if evt.StreamID != streamID || evt.ContestID != contestID {
			return nil, fmt.Errorf("event %d does not belong to stream %s", i, streamID)
		}
		if evt.Version != expectedVersion+uint64(i)+1 {
			return nil, fmt.Errorf("event %d has version %d, want %d", i, evt.Version, expectedVersion+uint64(i)+1)
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		next, err := event.Seal(evt, prev)
		if err != nil {
			return nil, err
		}
		next, err = s.keyring.Sign(next)
		if err != nil {
			return nil, fmt.Errorf("sign chain hash: %w", err)
		}
		prev = next.ChainHash
		sealed = append(sealed, next)
	}

	log := s.contest(contestID)
	log.mu.Lock()
	for i := range sealed {
		sealed[i].Position = s.position.Add(1)
	}
	log.events = append(log.events, sealed...)
	log.mu.Unlock()

	last := sealed[len(sealed)-1]
	if len(entry.events) == 0 {
		entry.record = storage.StreamRecord{
			ContestID:      contestID,
			StreamType:     last.StreamType,
			StreamID:       streamID,
			ParentStreamID: last.ParentStreamID,
			ItemID:         last.ItemID,
			UnitID:         last.UnitID,
		}
	}
	entry.record.Version = last.Version
	entry.record.ChainHash = last.ChainHash
	entry.record.UpdatedAt = last.Timestamp
	entry.events = append(entry.events, sealed...)
	return append([]event.Event(nil), sealed...), nil
}

// ListStream lists up to limit events after afterVersion.
func (s *EventStore) ListStream(ctx context.Context, streamID string, afterVersion uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, ok := s.streams.Load(streamID)
	if !ok {
		return nil, nil
	}
	entry := value.(*streamEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if afterVersion >= uint64(len(entry.events)) {
		return nil, nil
	}
	out := entry.events[afterVersion:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]event.Event(nil), out...), nil
}

// ListContestEvents lists up to limit contest events after afterPosition.
func (s *EventStore) ListContestEvents(ctx context.Context, contestID string, afterPosition uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := s.contest(contestID)
	log.mu.RLock()
	defer log.mu.RUnlock()
	start := sort.Search(len(log.events), func(i int) bool { return log.events[i].Position > afterPosition })
	out := log.events[start:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]event.Event(nil), out...), nil
}

// Head returns the contest's highest position.
func (s *EventStore) Head(ctx context.Context, contestID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log := s.contest(contestID)
	log.mu.RLock()
	defer log.mu.RUnlock()
	if len(log.events) == 0 {
		return 0, nil
	}
	return log.events[len(log.events)-1].Position, nil
}

// GetStream returns the stream summary.
func (s *EventStore) GetStream(ctx context.Context, streamID string) (storage.StreamRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.StreamRecord{}, err
	}
	value, ok := s.streams.Load(strings.TrimSpace(streamID))
	if !ok {
		return storage.StreamRecord{}, storage.ErrNotFound
	}
	entry := value.(*streamEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.record.Version == 0 {
		return storage.StreamRecord{}, storage.ErrNotFound
	}
	return entry.record, nil
}

// ListStreams lists the contest's streams of one type, ordered by id.
func (s *EventStore) ListStreams(ctx context.Context, contestID string, streamType event.StreamType) ([]storage.StreamRecord, error) {
	return s.filterStreams(ctx, func(r storage.StreamRecord) bool {
		return r.ContestID == contestID && (streamType == "" || r.StreamType == streamType)
	})
}

// ListChildStreams lists streams whose parent is parentStreamID.
func (s *EventStore) ListChildStreams(ctx context.Context, parentStreamID string) ([]storage.StreamRecord, error) {
	return s.filterStreams(ctx, func(r storage.StreamRecord) bool {
		return r.ParentStreamID == parentStreamID
	})
}

func (s *EventStore) filterStreams(ctx context.Context, keep func(storage.StreamRecord) bool) ([]storage.StreamRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []storage.StreamRecord
	s.streams.Range(func(_, value any) bool {
		entry := value.(*streamEntry)
		entry.mu.Lock()
		record := entry.record
		entry.mu.Unlock()
		if record.Version > 0 && keep(record) {
			out = append(out, record)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out, nil
}

// DeleteContestEvents drops every stream of the contest.
func (s *EventStore) DeleteContestEvents(ctx context.Context, contestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.streams.Range(func(key, value any) bool {
		entry := value.(*streamEntry)
		entry.mu.Lock()
		owned := entry.record.ContestID == contestID
		entry.mu.Unlock()
		if owned {
			s.streams.Delete(key)
		}
		return true
	})
	s.contests.Delete(contestID)
	return nil
}
