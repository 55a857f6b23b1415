package bundle

import "github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"

// CreatePayload creates a bundle under a unit result.
type CreatePayload struct {
	ResultID    string                   `json:"result_id"`
	ItemID      string                   `json:"item_id"`
	UnitID      string                   `json:"unit_id"`
	Kind        hierarchy.Kind           `json:"kind"`
	ListID      string                   `json:"list_id,omitempty"`
	Number      int                      `json:"number"`
	EntryParams EntryParams              `json:"entry_params"`
	Definition  hierarchy.ItemDefinition `json:"definition"`
}

// BallotPayload creates or updates a ballot.
type BallotPayload struct {
	Number  int           `json:"number"`
	Content BallotContent `json:"content"`
}

// BallotEventPayload records a ballot change with the resulting count.
type BallotEventPayload struct {
	Number      int           `json:"number"`
	Content     BallotContent `json:"content"`
	BallotCount int           `json:"ballot_count"`
}

// DeleteBallotPayload deletes the last ballot.
type DeleteBallotPayload struct {
	Number int `json:"number"`
}

// BallotDeletedPayload records a deleted ballot with the resulting count.
type BallotDeletedPayload struct {
	Number      int `json:"number"`
	BallotCount int `json:"ballot_count"`
}

// ReviewPayload accepts or rejects a submitted bundle.
type ReviewPayload struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

// StatusPayload records a status change.
type StatusPayload struct {
	From        Status `json:"from"`
	To          Status `json:"to"`
	BallotCount int    `json:"ballot_count"`
	Reason      string `json:"reason,omitempty"`
}
