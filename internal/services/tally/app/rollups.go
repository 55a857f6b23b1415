package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/replay"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/unitresult"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

const (
	tracerName     = "ballotbox/tally/app"
	rollupPageSize = 500
)

// RollupReport summarizes a rollup rebuild.
type RollupReport struct {
	ContestID string
	Watermark uint64
	// Units is the number of snapshot units rolled up, Resumed the number
	// taken over from an interrupted rebuild.
	Units   int
	Resumed int
	// Results is the number of unit results merged into the totals.
	Results int
	// Skipped is set when the stored totals were already current.
	Skipped bool
}

// RebuildRollups recomputes every total of a contest from the unit results
// as of the current contest head. Results entered in the testing phase only
// count while the contest is in it, and results that were never started or
// were reset count nowhere.
//
// Units are rolled up deepest first and each unit's totals are stored with a
// checkpoint. A cancelled rebuild resumes after the last stored unit at the
// same watermark as long as the snapshot did not change.
func (s *Service) RebuildRollups(ctx context.Context, contestID string) (report RollupReport, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "app.RebuildRollups", trace.WithAttributes(
		attribute.String("contest.id", contestID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		}
		span.SetAttributes(
			attribute.Int64("rollup.watermark", int64(report.Watermark)),
			attribute.Int("rollup.units", report.Units),
		)
		span.End()
	}()

	c, err := s.loadContest(ctx, contestID)
	if err != nil {
		return RollupReport{}, err
	}
	idx, err := s.loadIndex(ctx, c.ID)
	if err != nil {
		return RollupReport{}, err
	}
	fingerprint, err := rollupFingerprint(c, idx.Snapshot())
	if err != nil {
		return RollupReport{}, err
	}
	head, err := s.store.Head(ctx, c.ID)
	if err != nil {
		return RollupReport{}, fmt.Errorf("read head of %s: %w", c.ID, err)
	}
	checkpoint, err := s.store.GetRollupCheckpoint(ctx, c.ID)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return RollupReport{}, fmt.Errorf("read rollup checkpoint of %s: %w", c.ID, err)
	}

	units := idx.BottomUp()
	report = RollupReport{ContestID: c.ID, Watermark: head, Units: len(units)}
	start := 0
	switch {
	case found && checkpoint.Fingerprint == fingerprint && checkpoint.Done && checkpoint.Watermark == head:
		report.Skipped = true
		return report, nil
	case found && checkpoint.Fingerprint == fingerprint && !checkpoint.Done && checkpoint.Watermark <= head:
		report.Watermark = checkpoint.Watermark
		start = min(checkpoint.Completed, len(units))
		report.Resumed = start
	case found && checkpoint.Fingerprint != fingerprint:
		// Units or items may have disappeared; drop their totals.
		if err := s.store.DeleteRollups(ctx, c.ID); err != nil {
			return RollupReport{}, fmt.Errorf("clear rollups of %s: %w", c.ID, err)
		}
	}

	counted, err := s.countedResults(ctx, c, report.Watermark)
	if err != nil {
		return RollupReport{}, err
	}
	report.Results = len(counted)
	byUnit := make(map[string][]unitresult.State)
	for _, result := range counted {
		byUnit[result.UnitID] = append(byUnit[result.UnitID], result)
	}

	checkpoint = storage.RollupCheckpoint{
		ContestID:   c.ID,
		Watermark:   report.Watermark,
		Fingerprint: fingerprint,
		Total:       len(units),
	}
	totals := make(map[string]map[string]storage.RollupTotal, len(units))
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if i < start {
			stored, err := s.storedTotals(ctx, c.ID, unit.ID, report.Watermark)
			if err != nil {
				return report, err
			}
			totals[unit.ID] = stored
			continue
		}
		rows := s.unitTotals(c.ID, idx, unit, byUnit[unit.ID], totals, report.Watermark)
		totals[unit.ID] = rows
		if err := s.store.PutRollupTotals(ctx, sortedTotals(rows)); err != nil {
			return report, fmt.Errorf("store totals of unit %s: %w", unit.ID, err)
		}
		checkpoint.Completed = i + 1
		checkpoint.UpdatedAt = s.now().UTC()
		if err := s.store.SaveRollupCheckpoint(ctx, checkpoint); err != nil {
			return report, fmt.Errorf("save rollup checkpoint of %s: %w", c.ID, err)
		}
	}

	contestRows, err := contestTotals(c.ID, counted, totals[idx.Snapshot().RootID], report.Watermark, s.now().UTC())
	if err != nil {
		return report, err
	}
	if err := s.store.PutRollupTotals(ctx, contestRows); err != nil {
		return report, fmt.Errorf("store contest totals of %s: %w", c.ID, err)
	}
	checkpoint.Completed = len(units)
	checkpoint.Done = true
	checkpoint.UpdatedAt = s.now().UTC()
	if err := s.store.SaveRollupCheckpoint(ctx, checkpoint); err != nil {
		return report, fmt.Errorf("save rollup checkpoint of %s: %w", c.ID, err)
	}
	return report, nil
}

// rollupFingerprint identifies the inputs beside the event log that shape
// the totals.
func rollupFingerprint(c contest.Contest, snap hierarchy.Snapshot) (string, error) {
	fingerprint, err := snap.Fingerprint()
	if err != nil {
		return "", err
	}
	return fingerprint + ":" + strconv.FormatBool(c.State.TestingPhaseEnded()), nil
}

// countedResults replays every unit result of the contest up to watermark
// and keeps those that contribute to the totals.
func (s *Service) countedResults(ctx context.Context, c contest.Contest, watermark uint64) ([]unitresult.State, error) {
	if watermark == 0 {
		return nil, nil
	}
	states := make(map[string]unitresult.State)
	if _, err := replay.Contest(ctx, s.store, c.ID, 0, watermark, rollupPageSize, func(evt event.Event) error {
		if evt.StreamType != event.StreamUnitResult {
			return nil
		}
		next, err := unitresult.Fold(states[evt.StreamID], evt)
		if err != nil {
			return err
		}
		states[evt.StreamID] = next
		return nil
	}); err != nil {
		return nil, fmt.Errorf("replay results of %s: %w", c.ID, err)
	}
	ended := c.State.TestingPhaseEnded()
	ids := make([]string, 0, len(states))
	for streamID, state := range states {
		if !state.Created || state.CurrentStatus() == unitresult.StatusNotStarted || state.TestingPhaseEnded != ended {
			continue
		}
		ids = append(ids, streamID)
	}
	sort.Strings(ids)
	out := make([]unitresult.State, 0, len(ids))
	for _, streamID := range ids {
		out = append(out, states[streamID])
	}
	return out, nil
}

// unitTotals merges the unit's own results with the totals of its children.
// Every item tallied at the unit gets a row, even without results.
func (s *Service) unitTotals(contestID string, idx *hierarchy.Index, unit hierarchy.SnapshotUnit, own []unitresult.State, totals map[string]map[string]storage.RollupTotal, watermark uint64) map[string]storage.RollupTotal {
	parts := make(map[string][]rollup.Statistics)
	counts := make(map[string]int)
	for _, it := range idx.ItemsFor(unit.ID) {
		parts[it.ID] = nil
	}
	for _, result := range own {
		parts[result.ItemID] = append(parts[result.ItemID], result.Statistics)
		counts[result.ItemID]++
	}
	for _, child := range idx.Children(unit.ID) {
		for itemID, total := range totals[child.ID] {
			parts[itemID] = append(parts[itemID], total.Statistics)
			counts[itemID] += total.Results
		}
	}
	now := s.now().UTC()
	rows := make(map[string]storage.RollupTotal, len(parts))
	for itemID, stats := range parts {
		rows[itemID] = storage.RollupTotal{
			ContestID:  contestID,
			ItemID:     itemID,
			UnitID:     unit.ID,
			Statistics: rollup.MergeStatistics(stats...),
			Results:    counts[itemID],
			Watermark:  watermark,
			ComputedAt: now,
		}
	}
	return rows
}

// storedTotals loads the totals an interrupted rebuild already stored for a
// unit.
func (s *Service) storedTotals(ctx context.Context, contestID, unitID string, watermark uint64) (map[string]storage.RollupTotal, error) {
	stored, err := s.store.ListRollupTotals(ctx, contestID, unitID)
	if err != nil {
		return nil, fmt.Errorf("load totals of unit %s: %w", unitID, err)
	}
	rows := make(map[string]storage.RollupTotal, len(stored))
	for _, total := range stored {
		if total.Watermark != watermark {
			return nil, apperrors.WithMetadata(apperrors.CodeConsistencyCheckFailed,
				fmt.Sprintf("totals of unit %s are at watermark %d, checkpoint is at %d", unitID, total.Watermark, watermark),
				map[string]string{"UnitID": unitID})
		}
		rows[total.ItemID] = total
	}
	return rows, nil
}

// contestTotals merges every counted result of an item directly and checks
// the outcome against the total rolled up through the hierarchy.
func contestTotals(contestID string, counted []unitresult.State, root map[string]storage.RollupTotal, watermark uint64, now time.Time) ([]storage.RollupTotal, error) {
	parts := make(map[string][]rollup.Statistics)
	counts := make(map[string]int)
	for itemID := range root {
		parts[itemID] = nil
	}
	for _, result := range counted {
		parts[result.ItemID] = append(parts[result.ItemID], result.Statistics)
		counts[result.ItemID]++
	}
	rows := make(map[string]storage.RollupTotal, len(parts))
	for itemID, stats := range parts {
		flat := rollup.MergeStatistics(stats...)
		tree := root[itemID]
		if counts[itemID] != tree.Results || !reflect.DeepEqual(flat, tree.Statistics.Normalize()) {
			return nil, apperrors.WithMetadata(apperrors.CodeConsistencyCheckFailed,
				fmt.Sprintf("item %s: %d results merge differently than the %d rolled up through the hierarchy",
					itemID, counts[itemID], tree.Results),
				map[string]string{"ItemID": itemID})
		}
		rows[itemID] = storage.RollupTotal{
			ContestID:  contestID,
			ItemID:     itemID,
			Statistics: flat,
			Results:    counts[itemID],
			Watermark:  watermark,
			ComputedAt: now,
		}
	}
	return sortedTotals(rows), nil
}

func sortedTotals(rows map[string]storage.RollupTotal) []storage.RollupTotal {
	out := make([]storage.RollupTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
