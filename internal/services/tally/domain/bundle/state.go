package bundle

import (
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
)

// Status is the lifecycle state of a bundle.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInProcess Status = "in_process"
	StatusSubmitted Status = "submitted"
	StatusReviewed  Status = "reviewed"
	StatusApproved  Status = "approved"
	StatusDeleted   Status = "deleted"
)

// State is the replayed bundle.
type State struct {
	Created     bool
	ContestID   string
	ResultID    string
	ItemID      string
	UnitID      string
	ListID      string
	Kind        hierarchy.Kind
	Number      int
	Status      Status
	EntryParams EntryParams
	Definition  hierarchy.ItemDefinition
	CreatedBy   string
	Ballots     []Ballot
	// BallotCount is carried on every ballot event and must match Ballots.
	BallotCount     int
	ReviewedBy      string
	RejectionReason string
	CreatedAt       time.Time
	SubmittedAt     time.Time
	ReviewedAt      time.Time
	ApprovedAt      time.Time
	DeletedAt       time.Time
	UpdatedAt       time.Time
	Version         uint64
}

// Pending reports whether the bundle still blocks its result.
func (s State) Pending() bool {
	switch s.Status {
	case StatusCreated, StatusInProcess, StatusSubmitted:
		return true
	}
	return false
}
