package app

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
)

func TestRollupWorkerRebuildsStaleContests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)
	// A contest without a snapshot is passed over.
	if _, err := env.service.CreateContest(ctx, contest.Contest{
		ID:         "contest-2",
		Date:       time.Date(2026, 11, 29, 0, 0, 0, 0, time.UTC),
		RootUnitID: "ch",
	}); err != nil {
		t.Fatalf("create contest: %v", err)
	}

	worker := NewRollupWorker(env.service, 0, 0)
	reports, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(reports) != 1 || reports[0].ContestID != testContestID {
		t.Fatalf("first pass = %+v, want one rebuild of %s", reports, testContestID)
	}

	reports, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("second pass = %+v, want nothing to do", reports)
	}

	env.record(t, clerkBE, resultAt("maj-1", "bern"), mailCards(11))
	reports, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("third pass = %+v, want one rebuild", reports)
	}
}

func TestRollupWorkerRebuildsAfterActivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)
	worker := NewRollupWorker(env.service, 0, 0)
	if _, err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if _, err := env.service.TransitionContest(ctx, testContestID, contest.StateActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	status, err := env.service.RollupStatus(ctx, testContestID)
	if err != nil {
		t.Fatalf("rollup status: %v", err)
	}
	if status.Current {
		t.Fatalf("status = %+v, want stale after activation", status)
	}
	reports, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(reports) != 1 || reports[0].ContestID != testContestID {
		t.Fatalf("second pass = %+v, want one rebuild of %s", reports, testContestID)
	}
	rows, _ := env.service.ContestTotals(ctx, testContestID)
	if cards, results := mailTotal(t, rows, "maj-1"); cards != 0 || results != 0 {
		t.Fatalf("maj-1 = %d from %d results, want testing-phase results dropped", cards, results)
	}
	if status, _ := env.service.RollupStatus(ctx, testContestID); !status.Current {
		t.Fatalf("status = %+v, want current after rebuild", status)
	}
}

func TestRollupWorkerStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRollupWorker(env.service, time.Hour, 1).Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
