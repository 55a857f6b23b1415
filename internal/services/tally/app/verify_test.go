package app

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
)

func TestVerifyChain(t *testing.T) {
	keyring, err := integrity.ParseKeyring("k1=first-secret", "k1")
	if err != nil {
		t.Fatalf("parse keyring: %v", err)
	}
	env := newTestEnvWith(t, keyring, Options{})
	ctx := context.Background()
	ref := resultAt("maj-1", "bern")
	env.start(t, clerkBE, ref)
	env.enterFullBundle(t, ref, 1)

	report, err := env.service.VerifyChain(ctx, testContestID)
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	// result: start, enter number; bundle: create, ballot, submit
	if report.Streams != 2 || report.Events != 5 {
		t.Fatalf("report = %+v, want 2 streams with 5 events", report)
	}

	other, err := integrity.ParseKeyring("k1=second-secret", "k1")
	if err != nil {
		t.Fatalf("parse keyring: %v", err)
	}
	service, err := New(env.store, Options{Keyring: other})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = service.VerifyChain(ctx, testContestID)
	wantCode(t, err, apperrors.CodeConsistencyCheckFailed)

	_, err = env.service.VerifyChain(ctx, "missing")
	wantCode(t, err, apperrors.CodeNotFound)
}

func TestPurgeContest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedResults(t, env)
	if _, err := env.service.RebuildRollups(ctx, testContestID); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	wantCode(t, env.service.PurgeContest(ctx, testContestID), apperrors.CodeContestStateDisallows)
	for _, state := range []contest.State{contest.StateActive, contest.StatePastLocked, contest.StateArchived} {
		if _, err := env.service.TransitionContest(ctx, testContestID, state); err != nil {
			t.Fatalf("move to %s: %v", state, err)
		}
	}
	_, err := env.service.StartSubmission(ctx, clerkBE, resultAt("maj-1", "thun"))
	wantCode(t, err, apperrors.CodeContestStateDisallows)

	if err := env.service.PurgeContest(ctx, testContestID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	_, err = env.service.Contest(ctx, testContestID)
	wantCode(t, err, apperrors.CodeNotFound)
	streams, err := env.store.ListStreams(ctx, testContestID, "")
	if err != nil {
		t.Fatalf("list streams: %v", err)
	}
	if len(streams) != 0 {
		t.Fatalf("streams = %d, want 0", len(streams))
	}
	totals, err := env.store.ListRollupTotals(ctx, testContestID, "")
	if err != nil {
		t.Fatalf("list totals: %v", err)
	}
	if len(totals) != 0 {
		t.Fatalf("totals = %d, want 0", len(totals))
	}
}
