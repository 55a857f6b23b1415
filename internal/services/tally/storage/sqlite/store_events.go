package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

const eventColumns = `position, contest_id, stream_type, stream_id, parent_stream_id, item_id, unit_id,
	version, event_type, timestamp, actor_id, tenant_id, request_id, correlation_id, causation_id,
	payload_json, event_hash, prev_hash, chain_hash, signature, signature_key_id`

const streamColumns = `stream_id, contest_id, stream_type, parent_stream_id, item_id, unit_id, version, chain_hash, updated_at`

// AppendEvents atomically appends events when the stream is at
// expectedVersion and returns them with positions and hashes set.
func (s *Store) AppendEvents(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var actual uint64
	var prevChain string
	err = tx.QueryRowContext(ctx, `SELECT version, chain_hash FROM streams WHERE stream_id = ?`, streamID).Scan(&actual, &prevChain)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load stream head: %w", err)
	}
	if actual != expectedVersion {
		return nil, event.VersionConflict(streamID, expectedVersion, actual)
	}

	contestID := events[0].ContestID
	stored := make([]event.Event, 0, len(events))
	for i, evt := range events {
		if evt.StreamID != streamID || evt.ContestID != contestID {
			return nil, fmt.Errorf("event %d does not belong to stream %s", i, streamID)
		}
		if evt.Version != expectedVersion+uint64(i)+1 {
			return nil, fmt.Errorf("event %d has version %d, want %d", i, evt.Version, expectedVersion+uint64(i)+1)
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		sealed, err := event.Seal(evt, prevChain)
		if err != nil {
			return nil, err
		}
		sealed, err = s.keyring.Sign(sealed)
		if err != nil {
			return nil, fmt.Errorf("sign chain hash: %w", err)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO events (
	contest_id, stream_type, stream_id, parent_stream_id, item_id, unit_id,
	version, event_type, timestamp, actor_id, tenant_id, request_id, correlation_id, causation_id,
	payload_json, event_hash, prev_hash, chain_hash, signature, signature_key_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sealed.ContestID, string(sealed.StreamType), sealed.StreamID, sealed.ParentStreamID, sealed.ItemID, sealed.UnitID,
			int64(sealed.Version), string(sealed.Type), toMillis(sealed.Timestamp), sealed.ActorID, sealed.TenantID,
			sealed.RequestID, sealed.CorrelationID, sealed.CausationID,
			sealed.PayloadJSON, sealed.Hash, sealed.PrevHash, sealed.ChainHash, sealed.Signature, sealed.SignatureKeyID,
		)
		if err != nil {
			if isConstraintError(err) {
				return nil, event.VersionConflict(streamID, expectedVersion, expectedVersion+uint64(i)+1)
			}
			return nil, fmt.Errorf("append event: %w", err)
		}
		position, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("event position: %w", err)
		}
		sealed.Position = uint64(position)
		prevChain = sealed.ChainHash
		stored = append(stored, sealed)
	}

	last := stored[len(stored)-1]
	if _, err := tx.ExecContext(ctx, `INSERT INTO streams (`+streamColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(stream_id) DO UPDATE SET version = excluded.version, chain_hash = excluded.chain_hash, updated_at = excluded.updated_at`,
		streamID, contestID, string(last.StreamType), last.ParentStreamID, last.ItemID, last.UnitID,
		int64(last.Version), last.ChainHash, toMillis(last.Timestamp),
	); err != nil {
		return nil, fmt.Errorf("update stream head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ListStream lists up to limit events of a stream after afterVersion.
func (s *Store) ListStream(ctx context.Context, streamID string, afterVersion uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events
WHERE stream_id = ? AND version > ? ORDER BY version LIMIT ?`, streamID, int64(afterVersion), limit)
	if err != nil {
		return nil, fmt.Errorf("list stream events: %w", err)
	}
	return scanEvents(rows)
}

// ListContestEvents lists up to limit contest events after afterPosition.
func (s *Store) ListContestEvents(ctx context.Context, contestID string, afterPosition uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events
WHERE contest_id = ? AND position > ? ORDER BY position LIMIT ?`, contestID, int64(afterPosition), limit)
	if err != nil {
		return nil, fmt.Errorf("list contest events: %w", err)
	}
	return scanEvents(rows)
}

// Head returns the highest position stored for the contest.
func (s *Store) Head(ctx context.Context, contestID string) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var head sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(position) FROM events WHERE contest_id = ?`, contestID).Scan(&head); err != nil {
		return 0, fmt.Errorf("contest head: %w", err)
	}
	return uint64(head.Int64), nil
}

// GetStream returns a stream summary.
func (s *Store) GetStream(ctx context.Context, streamID string) (storage.StreamRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.StreamRecord{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE stream_id = ?`, strings.TrimSpace(streamID))
	if err != nil {
		return storage.StreamRecord{}, fmt.Errorf("get stream: %w", err)
	}
	records, err := scanStreams(rows)
	if err != nil {
		return storage.StreamRecord{}, err
	}
	if len(records) == 0 {
		return storage.StreamRecord{}, storage.ErrNotFound
	}
	return records[0], nil
}

// ListStreams lists the contest's streams of one type; an empty type lists all.
func (s *Store) ListStreams(ctx context.Context, contestID string, streamType event.StreamType) ([]storage.StreamRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+streamColumns+` FROM streams
WHERE contest_id = ? AND (? = '' OR stream_type = ?) ORDER BY stream_id`, contestID, string(streamType), string(streamType))
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return scanStreams(rows)
}

// ListChildStreams lists streams whose parent is parentStreamID.
func (s *Store) ListChildStreams(ctx context.Context, parentStreamID string) ([]storage.StreamRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+streamColumns+` FROM streams
WHERE parent_stream_id = ? ORDER BY stream_id`, parentStreamID)
	if err != nil {
		return nil, fmt.Errorf("list child streams: %w", err)
	}
	return scanStreams(rows)
}

// DeleteContestEvents removes every event and stream of the contest.
func (s *Store) DeleteContestEvents(ctx context.Context, contestID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE contest_id = ?`, contestID); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM streams WHERE contest_id = ?`, contestID); err != nil {
		return fmt.Errorf("delete streams: %w", err)
	}
	return tx.Commit()
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()
	var out []event.Event
	for rows.Next() {
		var evt event.Event
		var position, version, timestamp int64
		var streamType, eventType string
		if err := rows.Scan(
			&position, &evt.ContestID, &streamType, &evt.StreamID, &evt.ParentStreamID, &evt.ItemID, &evt.UnitID,
			&version, &eventType, &timestamp, &evt.ActorID, &evt.TenantID, &evt.RequestID, &evt.CorrelationID, &evt.CausationID,
			&evt.PayloadJSON, &evt.Hash, &evt.PrevHash, &evt.ChainHash, &evt.Signature, &evt.SignatureKeyID,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Position = uint64(position)
		evt.Version = uint64(version)
		evt.StreamType = event.StreamType(streamType)
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(timestamp)
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

func scanStreams(rows *sql.Rows) ([]storage.StreamRecord, error) {
	defer rows.Close()
	var out []storage.StreamRecord
	for rows.Next() {
		var record storage.StreamRecord
		var streamType string
		var version, updatedAt int64
		if err := rows.Scan(&record.StreamID, &record.ContestID, &streamType, &record.ParentStreamID,
			&record.ItemID, &record.UnitID, &version, &record.ChainHash, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		record.StreamType = event.StreamType(streamType)
		record.Version = uint64(version)
		record.UpdatedAt = fromMillis(updatedAt)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read streams: %w", err)
	}
	return out, nil
}
