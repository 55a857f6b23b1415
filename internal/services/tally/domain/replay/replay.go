// Package replay rebuilds state by folding stored events in order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrFoldRequired indicates a missing fold function.
	ErrFoldRequired = errors.New("fold function is required")
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
	// ErrContestIDRequired indicates a missing contest id.
	ErrContestIDRequired = errors.New("contest id is required")
)

// StreamStore lists the events of one stream by version.
type StreamStore interface {
	ListStream(ctx context.Context, streamID string, afterVersion uint64, limit int) ([]event.Event, error)
}

// ContestStore lists all events of a contest by global position.
type ContestStore interface {
	ListContestEvents(ctx context.Context, contestID string, afterPosition uint64, limit int) ([]event.Event, error)
}

// FoldFunc applies one event to state.
type FoldFunc[S any] func(state S, evt event.Event) (S, error)

// Options configures replay behavior.
type Options struct {
	AfterVersion uint64
	// UntilVersion stops replay after the given version. Zero replays to head.
	UntilVersion uint64
	PageSize     int
	// VerifyChain checks each event's hash chain link while folding.
	// AfterChainHash is the chain hash at AfterVersion.
	VerifyChain    bool
	AfterChainHash string
}

// Result captures replay outcomes.
type Result[S any] struct {
	State       S
	LastVersion uint64
	ChainHash   string
	Applied     int
}

// Stream folds a stream's events into state in version order.
func Stream[S any](ctx context.Context, store StreamStore, streamID string, state S, fold FoldFunc[S], options Options) (Result[S], error) {
	if store == nil {
		return Result[S]{}, ErrEventStoreRequired
	}
	if fold == nil {
		return Result[S]{}, ErrFoldRequired
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return Result[S]{}, ErrStreamIDRequired
	}
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result[S]{State: state, LastVersion: options.AfterVersion, ChainHash: options.AfterChainHash}
	for {
		events, err := store.ListStream(ctx, streamID, result.LastVersion, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilVersion > 0 && evt.Version > options.UntilVersion {
				return result, nil
			}
			expected := result.LastVersion + 1
			if evt.Version != expected {
				return result, fmt.Errorf("stream %s version gap: expected %d got %d", streamID, expected, evt.Version)
			}
			if options.VerifyChain {
				if err := event.VerifyLink(options.AfterChainHash, evt); err != nil {
					return result, err
				}
				options.AfterChainHash = evt.ChainHash
			}
			next, err := fold(result.State, evt)
			if err != nil {
				return result, err
			}
			result.State = next
			result.LastVersion = evt.Version
			result.ChainHash = evt.ChainHash
			result.Applied++
		}
		if len(events) < pageSize {
			return result, nil
		}
	}
}

// Contest visits every event of a contest in position order up to and
// including untilPosition. Zero visits everything currently stored.
func Contest(ctx context.Context, store ContestStore, contestID string, afterPosition, untilPosition uint64, pageSize int, visit func(event.Event) error) (uint64, error) {
	if store == nil {
		return afterPosition, ErrEventStoreRequired
	}
	contestID = strings.TrimSpace(contestID)
	if contestID == "" {
		return afterPosition, ErrContestIDRequired
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	last := afterPosition
	for {
		events, err := store.ListContestEvents(ctx, contestID, last, pageSize)
		if err != nil {
			return last, err
		}
		for _, evt := range events {
			if untilPosition > 0 && evt.Position > untilPosition {
				return last, nil
			}
			if err := visit(evt); err != nil {
				return last, err
			}
			last = evt.Position
		}
		if len(events) < pageSize {
			return last, nil
		}
	}
}
