package hierarchy

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
)

func mustBuild(t *testing.T, provider LiveProvider) Snapshot {
	t.Helper()
	snapshot, err := Build(context.Background(), "contest-1", "ch", provider)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snapshot
}

func TestReconcileUnchanged(t *testing.T) {
	existing := mustBuild(t, swissTree())
	plan, err := Reconcile(existing, mustBuild(t, swissTree()), nil, RemovalKeepWithResults)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if plan.Changed() {
		t.Fatalf("expected no change, got %+v", plan)
	}
	if len(plan.Unchanged) != len(existing.Units) {
		t.Fatalf("unchanged = %d, want %d", len(plan.Unchanged), len(existing.Units))
	}
}

func TestReconcileAddsAndReplaces(t *testing.T) {
	existing := mustBuild(t, swissTree())
	live := swissTree()
	live.units["spiez"] = LiveUnit{ID: "spiez", ParentID: "be", ReportingUnit: true}
	thun := live.units["thun"]
	thun.Name = "Thun BE"
	live.units["thun"] = thun

	plan, err := Reconcile(existing, mustBuild(t, live), nil, RemovalKeepWithResults)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(plan.Added) != 1 || plan.Added[0].BaseID != "spiez" {
		t.Fatalf("added = %+v", plan.Added)
	}
	if len(plan.Replaced) != 1 || plan.Replaced[0].BaseID != "thun" {
		t.Fatalf("replaced = %+v", plan.Replaced)
	}
}

func TestReconcileRemovalPolicies(t *testing.T) {
	existing := mustBuild(t, swissTree())
	live := swissTree()
	// Zürich drops out of the contest entirely.
	delete(live.units, "winti")
	fresh := mustBuild(t, live)
	wintiID := identity.SnapshotUnitID("contest-1", "winti")
	zhID := identity.SnapshotUnitID("contest-1", "zh")
	hasResults := func(id string) bool { return id == wintiID }

	t.Run("no results removes", func(t *testing.T) {
		plan, err := Reconcile(existing, fresh, func(string) bool { return false }, RemovalKeepWithResults)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if len(plan.Removed) != 2 {
			t.Fatalf("removed = %d, want 2", len(plan.Removed))
		}
		if _, ok := NewIndex(plan.Snapshot).Unit(wintiID); ok {
			t.Fatal("expected winti to be gone")
		}
	})

	t.Run("keep retains unit and ancestors", func(t *testing.T) {
		plan, err := Reconcile(existing, fresh, hasResults, RemovalKeepWithResults)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if len(plan.Removed) != 0 {
			t.Fatalf("removed = %+v, want none", plan.Removed)
		}
		if len(plan.Retained) != 2 {
			t.Fatalf("retained = %d, want 2", len(plan.Retained))
		}
		idx := NewIndex(plan.Snapshot)
		winti, ok := idx.Unit(wintiID)
		if !ok {
			t.Fatal("expected winti retained")
		}
		if winti.ParentID != zhID {
			t.Fatalf("winti parent = %s, want %s", winti.ParentID, zhID)
		}
		if _, ok := idx.Unit(zhID); !ok {
			t.Fatal("expected zh retained as ancestor")
		}
	})

	t.Run("reject fails", func(t *testing.T) {
		_, err := Reconcile(existing, fresh, hasResults, RemovalRejectWithResults)
		if apperrors.CodeOf(err) != apperrors.CodeStructuralChangeNotPermitted {
			t.Fatalf("code = %s", apperrors.CodeOf(err))
		}
	})
}

func TestParseRemovalPolicy(t *testing.T) {
	if got, err := ParseRemovalPolicy(""); err != nil || got != RemovalKeepWithResults {
		t.Fatalf("empty = %s, %v", got, err)
	}
	if got, err := ParseRemovalPolicy("REJECT_WITH_RESULTS"); err != nil || got != RemovalRejectWithResults {
		t.Fatalf("reject = %s, %v", got, err)
	}
	if _, err := ParseRemovalPolicy("drop"); err == nil {
		t.Fatal("expected error")
	}
}
