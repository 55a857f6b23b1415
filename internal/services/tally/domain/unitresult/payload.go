package unitresult

import "github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"

// StartPayload starts a submission.
type StartPayload struct {
	ItemID            string `json:"item_id"`
	UnitID            string `json:"unit_id"`
	TestingPhaseEnded bool   `json:"testing_phase_ended"`
}

// EnterBundleNumberPayload reserves a bundle number for a new bundle.
type EnterBundleNumberPayload struct {
	BundleID string `json:"bundle_id"`
	Number   int    `json:"number"`
	Policy   string `json:"policy,omitempty"`
}

// BundleNumberEnteredPayload records a reserved bundle number.
type BundleNumberEnteredPayload struct {
	BundleID string `json:"bundle_id"`
	Number   int    `json:"number"`
}

// SettleBundlePayload releases a pending bundle after review or deletion.
type SettleBundlePayload struct {
	BundleID string `json:"bundle_id"`
	Reason   string `json:"reason"`
}

// StatisticsPayload replaces the statistics of the result.
type StatisticsPayload struct {
	VotingCards []rollup.VotingCardSubTotal `json:"voting_cards,omitempty"`
	VoterInfo   []rollup.VoterInfoSubTotal  `json:"voter_info,omitempty"`
}

// FlagPayload sends a result back for correction.
type FlagPayload struct {
	Reason string `json:"reason"`
}

// TransitionPayload carries the status a plain transition moved to.
type TransitionPayload struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

const (
	SettleReviewed = "reviewed"
	SettleDeleted  = "deleted"
)
