package app

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

// mailTotal returns the valid mail voting cards of one item in rows.
func mailTotal(t *testing.T, rows []storage.RollupTotal, itemID string) (int64, int) {
	t.Helper()
	for _, row := range rows {
		if row.ItemID != itemID {
			continue
		}
		var count int64
		for _, card := range row.Statistics.VotingCards {
			if card.Valid {
				count += card.Count
			}
		}
		return count, row.Results
	}
	t.Fatalf("no total for item %s", itemID)
	return 0, 0
}

// seedResults records 10 cards at bern, 5 at thun and 3 at zurich for the
// federal majority election, and 7 at zurich for the cantonal vote.
func seedResults(t *testing.T, env testEnv) {
	t.Helper()
	for _, tc := range []struct {
		actor Actor
		ref   ResultRef
		cards int64
	}{
		{clerkBE, resultAt("maj-1", "bern"), 10},
		{clerkBE, resultAt("maj-1", "thun"), 5},
		{clerkZH, resultAt("maj-1", "zurich"), 3},
		{clerkZH, resultAt("vote-zh", "zurich"), 7},
	} {
		env.start(t, tc.actor, tc.ref)
		env.record(t, tc.actor, tc.ref, mailCards(tc.cards))
	}
}

func TestRebuildRollupsMergesUpTheHierarchy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)

	report, err := env.service.RebuildRollups(ctx, testContestID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if report.Units != 6 || report.Results != 4 || report.Skipped {
		t.Fatalf("report = %+v", report)
	}

	tests := []struct {
		unit    string
		item    string
		cards   int64
		results int
	}{
		{"bern", "maj-1", 10, 1},
		{"be", "maj-1", 15, 2},
		{"zh", "maj-1", 3, 1},
		{"zh", "vote-zh", 7, 1},
		{"ch", "maj-1", 18, 3},
		{"ch", "vote-zh", 7, 1},
	}
	for _, tc := range tests {
		rows, err := env.service.UnitTotals(ctx, testContestID, unitID(tc.unit))
		if err != nil {
			t.Fatalf("totals of %s: %v", tc.unit, err)
		}
		cards, results := mailTotal(t, rows, tc.item)
		if cards != tc.cards || results != tc.results {
			t.Fatalf("%s/%s = %d cards from %d results, want %d from %d", tc.unit, tc.item, cards, results, tc.cards, tc.results)
		}
	}

	rows, err := env.service.UnitTotals(ctx, testContestID, unitID("thun"))
	if err != nil {
		t.Fatalf("totals of thun: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("thun rows = %d, want only the federal election", len(rows))
	}

	contestRows, err := env.service.ContestTotals(ctx, testContestID)
	if err != nil {
		t.Fatalf("contest totals: %v", err)
	}
	if cards, _ := mailTotal(t, contestRows, "maj-1"); cards != 18 {
		t.Fatalf("contest maj-1 = %d, want 18", cards)
	}
	if cards, _ := mailTotal(t, contestRows, "vote-zh"); cards != 7 {
		t.Fatalf("contest vote-zh = %d, want 7", cards)
	}

	_, err = env.service.UnitTotals(ctx, testContestID, "")
	wantCode(t, err, apperrors.CodeValidation)
}

func TestRebuildRollupsFollowsCorrections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)
	if _, err := env.service.RebuildRollups(ctx, testContestID); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	again, err := env.service.RebuildRollups(ctx, testContestID)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if !again.Skipped {
		t.Fatalf("second rebuild = %+v, want skipped", again)
	}
	status, err := env.service.RollupStatus(ctx, testContestID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Current {
		t.Fatalf("status = %+v, want current", status)
	}

	env.record(t, clerkBE, resultAt("maj-1", "bern"), mailCards(12))
	if status, _ := env.service.RollupStatus(ctx, testContestID); status.Current {
		t.Fatal("expected totals to be stale after a new event")
	}
	if _, err := env.service.RebuildRollups(ctx, testContestID); err != nil {
		t.Fatalf("rebuild after correction: %v", err)
	}
	rows, _ := env.service.ContestTotals(ctx, testContestID)
	if cards, _ := mailTotal(t, rows, "maj-1"); cards != 20 {
		t.Fatalf("maj-1 = %d, want 20", cards)
	}

	if _, err := env.service.ResetResult(ctx, clerkBE, resultAt("maj-1", "thun")); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := env.service.RebuildRollups(ctx, testContestID); err != nil {
		t.Fatalf("rebuild after reset: %v", err)
	}
	rows, _ = env.service.UnitTotals(ctx, testContestID, unitID("be"))
	if cards, results := mailTotal(t, rows, "maj-1"); cards != 12 || results != 1 {
		t.Fatalf("be maj-1 = %d from %d results, want 12 from 1", cards, results)
	}
}

func TestTestingPhaseResultsStopCounting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)
	if _, err := env.service.RebuildRollups(ctx, testContestID); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := env.service.TransitionContest(ctx, testContestID, contest.StateActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	report, err := env.service.RebuildRollups(ctx, testContestID)
	if err != nil {
		t.Fatalf("rebuild after activation: %v", err)
	}
	if report.Results != 0 || report.Skipped {
		t.Fatalf("report = %+v, want no counted results", report)
	}
	rows, _ := env.service.ContestTotals(ctx, testContestID)
	if cards, results := mailTotal(t, rows, "maj-1"); cards != 0 || results != 0 {
		t.Fatalf("maj-1 = %d from %d results, want empty", cards, results)
	}
}

func TestRebuildRollupsResumesFromCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)
	first, err := env.service.RebuildRollups(ctx, testContestID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Pretend the rebuild stopped before the root unit.
	checkpoint, err := env.store.GetRollupCheckpoint(ctx, testContestID)
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	checkpoint.Done = false
	checkpoint.Completed = first.Units - 1
	if err := env.store.SaveRollupCheckpoint(ctx, checkpoint); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	env.record(t, clerkBE, resultAt("maj-1", "bern"), mailCards(30))

	resumed, err := env.service.RebuildRollups(ctx, testContestID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Resumed != first.Units-1 || resumed.Watermark != first.Watermark {
		t.Fatalf("resumed = %+v, want %d units at watermark %d", resumed, first.Units-1, first.Watermark)
	}
	rows, _ := env.service.ContestTotals(ctx, testContestID)
	if cards, _ := mailTotal(t, rows, "maj-1"); cards != 18 {
		t.Fatalf("resumed maj-1 = %d, want 18 at the old watermark", cards)
	}

	fresh, err := env.service.RebuildRollups(ctx, testContestID)
	if err != nil {
		t.Fatalf("fresh rebuild: %v", err)
	}
	if fresh.Resumed != 0 || fresh.Watermark <= first.Watermark {
		t.Fatalf("fresh = %+v", fresh)
	}
	rows, _ = env.service.ContestTotals(ctx, testContestID)
	if cards, _ := mailTotal(t, rows, "maj-1"); cards != 38 {
		t.Fatalf("maj-1 = %d, want 38", cards)
	}
}

func TestRebuildRollupsHonorsCancellation(t *testing.T) {
	env := newTestEnv(t)
	seedResults(t, env)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.service.RebuildRollups(ctx, testContestID); err == nil {
		t.Fatal("expected cancelled rebuild to fail")
	}
}
