package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
)

var _ storage.Store = (*Store)(nil)

type rollupKey struct {
	contestID string
	itemID    string
	unitID    string
}

// Store implements storage.Store in memory. Records are stored by value and
// handed out as copies of their top-level slices; callers must not mutate
// nested item definitions.
type Store struct {
	*EventStore

	mu          sync.RWMutex
	contests    map[string]contest.Contest
	live        map[string]hierarchy.LiveUnit
	snapshots   map[string]hierarchy.Snapshot
	totals      map[rollupKey]storage.RollupTotal
	checkpoints map[string]storage.RollupCheckpoint
}

// New builds an empty store.
func New(keyring *integrity.Keyring) *Store {
	return &Store{
		EventStore:  NewEventStore(keyring),
		contests:    make(map[string]contest.Contest),
		live:        make(map[string]hierarchy.LiveUnit),
		snapshots:   make(map[string]hierarchy.Snapshot),
		totals:      make(map[rollupKey]storage.RollupTotal),
		checkpoints: make(map[string]storage.RollupCheckpoint),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// PutContest inserts or replaces a contest.
func (s *Store) PutContest(ctx context.Context, c contest.Contest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ID) == "" {
		return apperrors.New(apperrors.CodeValidation, "contest id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[c.ID] = c
	return nil
}

// GetContest returns a contest.
func (s *Store) GetContest(ctx context.Context, contestID string) (contest.Contest, error) {
	if err := ctx.Err(); err != nil {
		return contest.Contest{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contests[contestID]
	if !ok {
		return contest.Contest{}, storage.ErrNotFound
	}
	return c, nil
}

// ListContests returns every contest ordered by id.
func (s *Store) ListContests(ctx context.Context) ([]contest.Contest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contest.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteContest removes a contest record.
func (s *Store) DeleteContest(ctx context.Context, contestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contests, contestID)
	return nil
}

// PutLiveUnits inserts or replaces live units.
func (s *Store) PutLiveUnits(ctx context.Context, units []hierarchy.LiveUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, u := range units {
		if strings.TrimSpace(u.ID) == "" {
			return apperrors.New(apperrors.CodeValidation, "live unit id is required")
		}
		if u.ParentID == u.ID {
			return apperrors.New(apperrors.CodeHierarchyCycle, fmt.Sprintf("unit %s is its own parent", u.ID))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range units {
		s.live[u.ID] = u
	}
	return nil
}

// DeleteLiveUnit removes a live unit. Its children keep their parent id.
func (s *Store) DeleteLiveUnit(ctx context.Context, unitID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, unitID)
	return nil
}

// Unit returns a live unit.
func (s *Store) Unit(ctx context.Context, id string) (hierarchy.LiveUnit, error) {
	if err := ctx.Err(); err != nil {
		return hierarchy.LiveUnit{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.live[id]
	if !ok {
		return hierarchy.LiveUnit{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("live unit %s not found", id))
	}
	return u, nil
}

// Children returns the live children of a unit ordered by id.
func (s *Store) Children(ctx context.Context, id string) ([]hierarchy.LiveUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []hierarchy.LiveUnit
	for _, u := range s.live {
		if u.ParentID == id {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSnapshot returns the contest snapshot, empty when none exists.
func (s *Store) GetSnapshot(ctx context.Context, contestID string) (hierarchy.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return hierarchy.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[contestID]
	if !ok {
		return hierarchy.Snapshot{ContestID: contestID}, nil
	}
	snap.Units = append([]hierarchy.SnapshotUnit(nil), snap.Units...)
	return snap, nil
}

// ReplaceSnapshot stores the contest snapshot.
func (s *Store) ReplaceSnapshot(ctx context.Context, snapshot hierarchy.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.ContestID) == "" {
		return apperrors.New(apperrors.CodeValidation, "snapshot contest id is required")
	}
	snapshot.Units = append([]hierarchy.SnapshotUnit(nil), snapshot.Units...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.ContestID] = snapshot
	return nil
}

// DeleteSnapshot removes the contest snapshot.
func (s *Store) DeleteSnapshot(ctx context.Context, contestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, contestID)
	return nil
}

// PutRollupTotals upserts totals.
func (s *Store) PutRollupTotals(ctx context.Context, totals []storage.RollupTotal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, total := range totals {
		s.totals[rollupKey{total.ContestID, total.ItemID, total.UnitID}] = total
	}
	return nil
}

// GetRollupTotal returns one total.
func (s *Store) GetRollupTotal(ctx context.Context, contestID, itemID, unitID string) (storage.RollupTotal, error) {
	if err := ctx.Err(); err != nil {
		return storage.RollupTotal{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, ok := s.totals[rollupKey{contestID, itemID, unitID}]
	if !ok {
		return storage.RollupTotal{}, storage.ErrNotFound
	}
	return total, nil
}

// ListRollupTotals lists the contest's totals ordered by unit then item.
func (s *Store) ListRollupTotals(ctx context.Context, contestID, unitID string) ([]storage.RollupTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.RollupTotal
	for key, total := range s.totals {
		if key.contestID == contestID && (unitID == "" || key.unitID == unitID) {
			out = append(out, total)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID < out[j].UnitID
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

// GetRollupCheckpoint returns the rebuild checkpoint.
func (s *Store) GetRollupCheckpoint(ctx context.Context, contestID string) (storage.RollupCheckpoint, error) {
	if err := ctx.Err(); err != nil {
		return storage.RollupCheckpoint{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[contestID]
	if !ok {
		return storage.RollupCheckpoint{}, storage.ErrNotFound
	}
	return cp, nil
}

// SaveRollupCheckpoint stores the rebuild checkpoint.
func (s *Store) SaveRollupCheckpoint(ctx context.Context, checkpoint storage.RollupCheckpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.ContestID] = checkpoint
	return nil
}

// DeleteRollups removes the contest's totals and checkpoint.
func (s *Store) DeleteRollups(ctx context.Context, contestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.totals {
		if key.contestID == contestID {
			delete(s.totals, key)
		}
	}
	delete(s.checkpoints, contestID)
	return nil
}
