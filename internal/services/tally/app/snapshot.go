package app

import (
	"context"
	"fmt"
	"log"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
)

// SnapshotReport summarizes a snapshot build.
type SnapshotReport struct {
	ContestID   string
	Fingerprint string
	Added       int
	Replaced    int
	Unchanged   int
	Removed     int
	Retained    int
	Changed     bool
}

// BuildForContest freezes the live hierarchy below the contest root. A
// rebuild with an unchanged live hierarchy stores nothing and reports the
// same fingerprint.
func (s *Service) BuildForContest(ctx context.Context, contestID string) (SnapshotReport, error) {
	c, err := s.loadContest(ctx, contestID)
	if err != nil {
		return SnapshotReport{}, err
	}
	existing, err := s.store.GetSnapshot(ctx, c.ID)
	if err != nil {
		return SnapshotReport{}, fmt.Errorf("load snapshot of %s: %w", c.ID, err)
	}
	if err := contest.CheckSnapshot(c.State, !existing.Empty()); err != nil {
		return SnapshotReport{}, err
	}
	fresh, err := hierarchy.Build(ctx, c.ID, c.RootUnitID, s.store)
	if err != nil {
		return SnapshotReport{}, err
	}
	withResults, err := s.unitsWithResults(ctx, c.ID)
	if err != nil {
		return SnapshotReport{}, err
	}
	plan, err := hierarchy.Reconcile(existing, fresh, func(unitID string) bool {
		_, ok := withResults[unitID]
		return ok
	}, s.policy)
	if err != nil {
		return SnapshotReport{}, err
	}
	fingerprint, err := plan.Snapshot.Fingerprint()
	if err != nil {
		return SnapshotReport{}, err
	}
	report := SnapshotReport{
		ContestID:   c.ID,
		Fingerprint: fingerprint,
		Added:       len(plan.Added),
		Replaced:    len(plan.Replaced),
		Unchanged:   len(plan.Unchanged),
		Removed:     len(plan.Removed),
		Retained:    len(plan.Retained),
		Changed:     plan.Changed() || existing.Empty(),
	}
	if !report.Changed {
		return report, nil
	}
	if err := s.store.ReplaceSnapshot(ctx, plan.Snapshot); err != nil {
		return SnapshotReport{}, fmt.Errorf("store snapshot of %s: %w", c.ID, err)
	}
	log.Printf("snapshot of %s: %d added, %d replaced, %d removed, %d retained",
		c.ID, report.Added, report.Replaced, report.Removed, report.Retained)
	return report, nil
}

// unitsWithResults returns the snapshot units that have a unit result stream.
func (s *Service) unitsWithResults(ctx context.Context, contestID string) (map[string]struct{}, error) {
	streams, err := s.store.ListStreams(ctx, contestID, event.StreamUnitResult)
	if err != nil {
		return nil, fmt.Errorf("list unit results of %s: %w", contestID, err)
	}
	units := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		units[stream.UnitID] = struct{}{}
	}
	return units, nil
}
