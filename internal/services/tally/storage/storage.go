package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// StreamRecord summarizes one stored stream.
type StreamRecord struct {
	ContestID      string
	StreamType     event.StreamType
	StreamID       string
	ParentStreamID string
	ItemID         string
	UnitID         string
	Version        uint64
	ChainHash      string
	UpdatedAt      time.Time
}

// EventStore persists unit result and bundle streams.
type EventStore interface {
	// AppendEvents appends to streamID when its head is at expectedVersion.
	// Positions and hashes are assigned by the store.
	AppendEvents(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) ([]event.Event, error)
	ListStream(ctx context.Context, streamID string, afterVersion uint64, limit int) ([]event.Event, error)
	ListContestEvents(ctx context.Context, contestID string, afterPosition uint64, limit int) ([]event.Event, error)
	// Head returns the highest position stored for the contest, or zero.
	Head(ctx context.Context, contestID string) (uint64, error)
	GetStream(ctx context.Context, streamID string) (StreamRecord, error)
	ListStreams(ctx context.Context, contestID string, streamType event.StreamType) ([]StreamRecord, error)
	ListChildStreams(ctx context.Context, parentStreamID string) ([]StreamRecord, error)
	// DeleteContestEvents removes every stream of the contest.
	DeleteContestEvents(ctx context.Context, contestID string) error
}

// ContestStore persists contest records.
type ContestStore interface {
	PutContest(ctx context.Context, c contest.Contest) error
	GetContest(ctx context.Context, contestID string) (contest.Contest, error)
	ListContests(ctx context.Context) ([]contest.Contest, error)
	DeleteContest(ctx context.Context, contestID string) error
}

// LiveHierarchyStore persists the live hierarchy and serves it to the
// snapshot builder.
type LiveHierarchyStore interface {
	hierarchy.LiveProvider
	PutLiveUnits(ctx context.Context, units []hierarchy.LiveUnit) error
	DeleteLiveUnit(ctx context.Context, unitID string) error
}

// SnapshotStore persists frozen contest hierarchies.
type SnapshotStore interface {
	// GetSnapshot returns the contest snapshot, empty if none was built.
	GetSnapshot(ctx context.Context, contestID string) (hierarchy.Snapshot, error)
	ReplaceSnapshot(ctx context.Context, snapshot hierarchy.Snapshot) error
	DeleteSnapshot(ctx context.Context, contestID string) error
}

// RollupTotal is the merged statistics of one item at one snapshot unit.
// An empty UnitID marks the contest-level total of the item.
type RollupTotal struct {
	ContestID  string
	ItemID     string
	UnitID     string
	Statistics rollup.Statistics
	// Results counts the unit results merged into the total.
	Results    int
	Watermark  uint64
	ComputedAt time.Time
}

// RollupCheckpoint records the progress of a rebuild. Completed counts the
// snapshot units, in bottom-up order, whose totals are stored.
type RollupCheckpoint struct {
	ContestID   string
	Watermark   uint64
	Fingerprint string
	Completed   int
	Total       int
	Done        bool
	UpdatedAt   time.Time
}

// RollupStore persists rollup totals and rebuild checkpoints.
type RollupStore interface {
	PutRollupTotals(ctx context.Context, totals []RollupTotal) error
	GetRollupTotal(ctx context.Context, contestID, itemID, unitID string) (RollupTotal, error)
	// ListRollupTotals lists totals of the contest, narrowed to one unit when
	// unitID is set.
	ListRollupTotals(ctx context.Context, contestID, unitID string) ([]RollupTotal, error)
	GetRollupCheckpoint(ctx context.Context, contestID string) (RollupCheckpoint, error)
	SaveRollupCheckpoint(ctx context.Context, checkpoint RollupCheckpoint) error
	DeleteRollups(ctx context.Context, contestID string) error
}

// Store is every contract the app layer needs.
type Store interface {
	EventStore
	ContestStore
	LiveHierarchyStore
	SnapshotStore
	RollupStore
	Close() error
}
