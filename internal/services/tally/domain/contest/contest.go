// Package contest models the contest lifecycle and the structural-change
// guards that depend on it.
package contest

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

// State is the lifecycle state of a contest.
type State string

const (
	StateTestingPhase State = "testing_phase"
	StateActive       State = "active"
	StatePastLocked   State = "past_locked"
	StatePastUnlocked State = "past_unlocked"
	StateArchived     State = "archived"
)

// Contest is a tallying event with a fixed date. The snapshot hierarchy is
// rooted at RootUnitID.
type Contest struct {
	ID         string
	Name       string
	Date       time.Time
	State      State
	RootUnitID string
	TenantID   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParseState normalizes a state label.
func ParseState(raw string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown contest state %q", raw))
	}
	return state, nil
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateTestingPhase, StateActive, StatePastLocked, StatePastUnlocked, StateArchived:
		return true
	}
	return false
}

// TestingPhaseEnded reports whether results entered in this state count.
func (s State) TestingPhaseEnded() bool {
	return s.Valid() && s != StateTestingPhase
}

// AcceptsResults reports whether result entry is open in this state.
func (s State) AcceptsResults() bool {
	switch s {
	case StateTestingPhase, StateActive, StatePastUnlocked:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateTestingPhase: {StateActive},
	StateActive:       {StatePastLocked},
	StatePastLocked:   {StatePastUnlocked, StateArchived},
	StatePastUnlocked: {StatePastLocked},
}

// CheckTransition validates a lifecycle move.
func CheckTransition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeInvalidStateTransition,
		fmt.Sprintf("contest cannot move from %s to %s", from, to),
		map[string]string{apperrors.MetaState: string(from)})
}

// CheckSnapshot decides whether a snapshot may be built. The first build is
// allowed until the contest is past; later rebuilds only while testing.
func CheckSnapshot(state State, snapshotExists bool) error {
	switch {
	case !snapshotExists && (state == StateTestingPhase || state == StateActive):
		return nil
	case snapshotExists && state == StateTestingPhase:
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeStructuralChangeNotPermitted,
		fmt.Sprintf("contest in state %s does not permit snapshot changes", state),
		map[string]string{apperrors.MetaState: string(state)})
}

// CheckResults rejects result entry when the contest is closed.
func CheckResults(state State) error {
	if state.AcceptsResults() {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeContestStateDisallows,
		fmt.Sprintf("contest in state %s does not accept results", state),
		map[string]string{apperrors.MetaState: string(state)})
}

// CheckPurge allows purging only archived contests.
func CheckPurge(state State) error {
	if state == StateArchived {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeContestStateDisallows,
		fmt.Sprintf("contest in state %s cannot be purged", state),
		map[string]string{apperrors.MetaState: string(state)})
}
