package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/bundle"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

// Snapshot returns the frozen hierarchy of a contest.
func (s *Service) Snapshot(ctx context.Context, contestID string) (hierarchy.Snapshot, error) {
	idx, err := s.loadIndex(ctx, strings.TrimSpace(contestID))
	if err != nil {
		return hierarchy.Snapshot{}, err
	}
	return idx.Snapshot(), nil
}

// ResultSlots lists every (item, reporting unit) pair expected to report.
func (s *Service) ResultSlots(ctx context.Context, contestID string) ([]hierarchy.ResultSlot, error) {
	snap, err := s.Snapshot(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return hierarchy.ResultSlots(snap), nil
}

// ReportingUnitsFor lists the reporting units a tenant may submit for.
func (s *Service) ReportingUnitsFor(ctx context.Context, contestID, tenantID string) ([]string, error) {
	snap, err := s.Snapshot(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return hierarchy.BuildPermissions(snap).UnitsFor(tenantID), nil
}

// UnitTotals returns the merged totals of every item at one snapshot unit.
func (s *Service) UnitTotals(ctx context.Context, contestID, unitID string) ([]storage.RollupTotal, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "unit id is required")
	}
	totals, err := s.store.ListRollupTotals(ctx, contestID, unitID)
	if err != nil {
		return nil, fmt.Errorf("list totals of unit %s: %w", unitID, err)
	}
	return totals, nil
}

// ContestTotals returns the contest-level total of every item.
func (s *Service) ContestTotals(ctx context.Context, contestID string) ([]storage.RollupTotal, error) {
	totals, err := s.store.ListRollupTotals(ctx, contestID, "")
	if err != nil {
		return nil, fmt.Errorf("list totals of %s: %w", contestID, err)
	}
	out := totals[:0]
	for _, total := range totals {
		if total.UnitID == "" {
			out = append(out, total)
		}
	}
	return out, nil
}

// RollupStatus describes how current the stored totals are.
type RollupStatus struct {
	Head       uint64
	Checkpoint storage.RollupCheckpoint
	// Current is set when a finished rebuild covers every stored event and
	// was built from the present snapshot and contest phase.
	Current bool
}

// RollupStatus compares the last rebuild with the contest head.
func (s *Service) RollupStatus(ctx context.Context, contestID string) (RollupStatus, error) {
	c, err := s.loadContest(ctx, contestID)
	if err != nil {
		return RollupStatus{}, err
	}
	head, err := s.store.Head(ctx, c.ID)
	if err != nil {
		return RollupStatus{}, fmt.Errorf("read head of %s: %w", c.ID, err)
	}
	status := RollupStatus{Head: head}
	checkpoint, err := s.store.GetRollupCheckpoint(ctx, c.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return RollupStatus{}, fmt.Errorf("read rollup checkpoint of %s: %w", c.ID, err)
	}
	status.Checkpoint = checkpoint
	if !checkpoint.Done || checkpoint.Watermark != head {
		return status, nil
	}
	idx, err := s.loadIndex(ctx, c.ID)
	if apperrors.CodeOf(err) == apperrors.CodeNotFound {
		return status, nil
	}
	if err != nil {
		return RollupStatus{}, err
	}
	fingerprint, err := rollupFingerprint(c, idx.Snapshot())
	if err != nil {
		return RollupStatus{}, err
	}
	status.Current = checkpoint.Fingerprint == fingerprint
	return status, nil
}

func sortBundles(bundles []bundle.State) {
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Number < bundles[j].Number })
}
