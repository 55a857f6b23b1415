package app

import (
	"context"
	"reflect"
	"testing"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
)

func TestBuildForContestIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, err := env.service.Snapshot(ctx, testContestID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(first.Units) != 6 {
		t.Fatalf("units = %d, want 6", len(first.Units))
	}
	if first.RootID != unitID("ch") {
		t.Fatalf("root = %s, want %s", first.RootID, unitID("ch"))
	}

	report, err := env.service.BuildForContest(ctx, testContestID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if report.Changed || report.Unchanged != 6 {
		t.Fatalf("report = %+v, want 6 unchanged", report)
	}
	second, _ := env.service.Snapshot(ctx, testContestID)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("rebuild with unchanged live hierarchy changed the snapshot")
	}
	fingerprint, _ := first.Fingerprint()
	if report.Fingerprint != fingerprint {
		t.Fatalf("fingerprint = %s, want %s", report.Fingerprint, fingerprint)
	}
}

func TestBuildForContestKeepsUnitsWithResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.start(t, clerkBE, resultAt("maj-1", "thun"))

	if err := env.store.DeleteLiveUnit(ctx, "thun"); err != nil {
		t.Fatalf("delete live unit: %v", err)
	}
	if err := env.store.DeleteLiveUnit(ctx, "zurich"); err != nil {
		t.Fatalf("delete live unit: %v", err)
	}
	if err := env.store.PutLiveUnits(ctx, []hierarchy.LiveUnit{{ID: "biel", ParentID: "be", ReportingUnit: true}}); err != nil {
		t.Fatalf("put live unit: %v", err)
	}

	strict, err := New(env.store, Options{RemovalPolicy: hierarchy.RemovalRejectWithResults})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = strict.BuildForContest(ctx, testContestID)
	wantCode(t, err, apperrors.CodeStructuralChangeNotPermitted)

	report, err := env.service.BuildForContest(ctx, testContestID)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if report.Added != 1 || report.Retained != 1 || report.Removed != 1 {
		t.Fatalf("report = %+v, want biel added, thun retained, zurich removed", report)
	}
	snap, _ := env.service.Snapshot(ctx, testContestID)
	idx := hierarchy.NewIndex(snap)
	if _, ok := idx.Unit(unitID("thun")); !ok {
		t.Fatal("thun carries a result and must stay in the snapshot")
	}
	if _, ok := idx.Unit(unitID("zurich")); ok {
		t.Fatal("zurich has no results and must be removed")
	}
}

func TestBuildForContestRespectsContestState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.service.TransitionContest(ctx, testContestID, contest.StateActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	_, err := env.service.BuildForContest(ctx, testContestID)
	wantCode(t, err, apperrors.CodeStructuralChangeNotPermitted)
	if !apperrors.IsKind(err, apperrors.KindStructuralChangeNotPermitted) {
		t.Fatalf("kind = %s", apperrors.KindOf(err))
	}
}

func TestProjections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	units, err := env.service.ReportingUnitsFor(ctx, testContestID, "t-be")
	if err != nil {
		t.Fatalf("reporting units: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("t-be units = %v, want bern and thun", units)
	}
	slots, err := env.service.ResultSlots(ctx, testContestID)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	// bern and thun report maj-1; zurich reports maj-1 and vote-zh.
	if len(slots) != 4 {
		t.Fatalf("slots = %d, want 4", len(slots))
	}
	_, err = env.service.StartSubmission(ctx, clerkZH, resultAt("maj-1", "bern"))
	wantCode(t, err, apperrors.CodePermissionDenied)
	_, err = env.service.StartSubmission(ctx, clerkBE, resultAt("vote-zh", "bern"))
	wantCode(t, err, apperrors.CodeNotFound)
}
