package unitresult

import (
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
)

// Status is the lifecycle state of a unit result.
type Status string

const (
	StatusNotStarted           Status = "not_started"
	StatusSubmissionInProgress Status = "submission_in_progress"
	StatusSubmissionDone       Status = "submission_done"
	StatusAuditedTentatively   Status = "audited_tentatively"
	StatusCorrected            Status = "corrected"
	StatusPlausibilised        Status = "plausibilised"
)

// BundleEntry is a bundle number reserved on the result.
type BundleEntry struct {
	Number  int
	Settled bool
	Reason  string
}

// State is the replayed unit result.
type State struct {
	// Created is true once a submission was started, and stays true across resets.
	Created           bool
	ContestID         string
	ItemID            string
	UnitID            string
	Status            Status
	TestingPhaseEnded bool
	Bundles           map[string]BundleEntry
	UsedNumbers       map[int]string
	HighestNumber     int
	Pending           int
	Statistics        rollup.Statistics
	CorrectionReason  string
	StartedAt         time.Time
	SubmittedAt       time.Time
	AuditedAt         time.Time
	FlaggedAt         time.Time
	FinalizedAt       time.Time
	UpdatedAt         time.Time
	Version           uint64
}

// CurrentStatus returns the status, treating the zero state as not started.
func (s State) CurrentStatus() Status {
	if s.Status == "" {
		return StatusNotStarted
	}
	return s.Status
}

// Final reports whether the result reached its terminal state.
func (s State) Final() bool {
	return s.Status == StatusPlausibilised
}

// PendingBundles lists the ids of bundles not yet reviewed or deleted.
func (s State) PendingBundles() []string {
	var ids []string
	for id, entry := range s.Bundles {
		if !entry.Settled {
			ids = append(ids, id)
		}
	}
	return ids
}
