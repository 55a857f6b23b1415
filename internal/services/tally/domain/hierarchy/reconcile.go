package hierarchy

import (
	"fmt"
	"reflect"
	"strings"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

// RemovalPolicy decides what a rebuild does with units that disappeared from
// the live hierarchy but already carry recorded results.
type RemovalPolicy string

const (
	// RemovalKeepWithResults retains such units, and their ancestors.
	RemovalKeepWithResults RemovalPolicy = "keep_with_results"
	// RemovalRejectWithResults fails the rebuild.
	RemovalRejectWithResults RemovalPolicy = "reject_with_results"
)

// ParseRemovalPolicy normalizes a policy label. Empty means keep.
func ParseRemovalPolicy(raw string) (RemovalPolicy, error) {
	switch policy := RemovalPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "":
		return RemovalKeepWithResults, nil
	case RemovalKeepWithResults, RemovalRejectWithResults:
		return policy, nil
	}
	return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown removal policy %q", raw))
}

// Plan is the outcome of reconciling a rebuilt snapshot with the stored one.
type Plan struct {
	Added     []SnapshotUnit
	Replaced  []SnapshotUnit
	Unchanged []SnapshotUnit
	Removed   []SnapshotUnit
	Retained  []SnapshotUnit
	// Snapshot is the reconciled snapshot to store.
	Snapshot Snapshot
}

// Changed reports whether applying the plan modifies the stored snapshot.
func (p Plan) Changed() bool {
	return len(p.Added) > 0 || len(p.Replaced) > 0 || len(p.Removed) > 0
}

// Reconcile compares a fresh build with the existing snapshot. hasResults
// reports whether a snapshot unit already has recorded results.
func Reconcile(existing, fresh Snapshot, hasResults func(unitID string) bool, policy RemovalPolicy) (Plan, error) {
	if policy == "" {
		policy = RemovalKeepWithResults
	}
	freshIdx := NewIndex(fresh)
	existingIdx := NewIndex(existing)

	var plan Plan
	for _, unit := range fresh.Units {
		old, ok := existingIdx.Unit(unit.ID)
		switch {
		case !ok:
			plan.Added = append(plan.Added, unit)
		case reflect.DeepEqual(old, unit):
			plan.Unchanged = append(plan.Unchanged, unit)
		default:
			plan.Replaced = append(plan.Replaced, unit)
		}
	}

	retained := make(map[string]struct{})
	for _, unit := range existing.Units {
		if _, ok := freshIdx.Unit(unit.ID); ok {
			continue
		}
		if hasResults == nil || !hasResults(unit.ID) {
			continue
		}
		if policy == RemovalRejectWithResults {
			return Plan{}, apperrors.WithMetadata(apperrors.CodeStructuralChangeNotPermitted,
				fmt.Sprintf("unit %s was removed but has recorded results", unit.BaseID),
				map[string]string{"UnitID": unit.ID})
		}
		retained[unit.ID] = struct{}{}
		for _, ancestor := range existingIdx.Ancestors(unit.ID) {
			if _, ok := freshIdx.Unit(ancestor.ID); ok {
				break
			}
			retained[ancestor.ID] = struct{}{}
		}
	}

	plan.Snapshot = Snapshot{ContestID: fresh.ContestID, RootID: fresh.RootID}
	plan.Snapshot.Units = append(plan.Snapshot.Units, fresh.Units...)
	for _, unit := range existing.Units {
		if _, ok := freshIdx.Unit(unit.ID); ok {
			continue
		}
		if _, keep := retained[unit.ID]; keep {
			plan.Retained = append(plan.Retained, unit)
			plan.Snapshot.Units = append(plan.Snapshot.Units, unit)
			continue
		}
		plan.Removed = append(plan.Removed, unit)
	}
	sortUnits(plan.Snapshot.Units)
	return plan, nil
}
