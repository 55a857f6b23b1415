package unitresult

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
)

// FoldHandledTypes returns the event types handled by Fold.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		EventTypeSubmissionStarted,
		EventTypeBundleNumberEntered,
		EventTypeBundleSettled,
		EventTypeStatisticsRecorded,
		EventTypeSubmitted,
		EventTypeAudited,
		EventTypeFlaggedForCorrection,
		EventTypeCorrectionStarted,
		EventTypeFinalized,
		EventTypeReset,
	}
}

// Fold applies an event to unit result state. Maps are copied before they
// change, so states handed out earlier stay untouched.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeSubmissionStarted:
		var payload StartPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("unit result fold %s: %w", evt.Type, err)
		}
		state.Created = true
		state.ContestID = evt.ContestID
		state.ItemID = payload.ItemID
		state.UnitID = payload.UnitID
		state.TestingPhaseEnded = payload.TestingPhaseEnded
		state.Status = StatusSubmissionInProgress
		state.StartedAt = evt.Timestamp
	case EventTypeBundleNumberEntered:
		var payload BundleNumberEnteredPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("unit result fold %s: %w", evt.Type, err)
		}
		state.Bundles = maps.Clone(state.Bundles)
		state.UsedNumbers = maps.Clone(state.UsedNumbers)
		if state.Bundles == nil {
			state.Bundles = make(map[string]BundleEntry)
		}
		if state.UsedNumbers == nil {
			state.UsedNumbers = make(map[int]string)
		}
		state.Bundles[payload.BundleID] = BundleEntry{Number: payload.Number}
		state.UsedNumbers[payload.Number] = payload.BundleID
		state.HighestNumber = max(state.HighestNumber, payload.Number)
		state.Pending++
	case EventTypeBundleSettled:
		var payload SettleBundlePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("unit result fold %s: %w", evt.Type, err)
		}
		entry, ok := state.Bundles[payload.BundleID]
		if !ok {
			return state, fmt.Errorf("unit result fold %s: unknown bundle %s", evt.Type, payload.BundleID)
		}
		if !entry.Settled {
			state.Bundles = maps.Clone(state.Bundles)
			entry.Settled = true
			entry.Reason = payload.Reason
			state.Bundles[payload.BundleID] = entry
			state.Pending--
		}
	case EventTypeStatisticsRecorded:
		var payload StatisticsPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("unit result fold %s: %w", evt.Type, err)
		}
		state.Statistics = rollup.Statistics{VotingCards: payload.VotingCards, VoterInfo: payload.VoterInfo}
	case EventTypeSubmitted:
		state.Status = StatusSubmissionDone
		state.SubmittedAt = evt.Timestamp
	case EventTypeAudited:
		state.Status = StatusAuditedTentatively
		state.AuditedAt = evt.Timestamp
	case EventTypeFlaggedForCorrection:
		var payload FlagPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("unit result fold %s: %w", evt.Type, err)
		}
		state.Status = StatusCorrected
		state.CorrectionReason = payload.Reason
		state.FlaggedAt = evt.Timestamp
	case EventTypeCorrectionStarted:
		state.Status = StatusSubmissionInProgress
	case EventTypeFinalized:
		state.Status = StatusPlausibilised
		state.FinalizedAt = evt.Timestamp
	case EventTypeReset:
		// Reserved bundle numbers survive a reset.
		state.Status = StatusNotStarted
		state.Statistics = rollup.Statistics{}
		state.CorrectionReason = ""
		state.SubmittedAt = time.Time{}
		state.AuditedAt = time.Time{}
		state.FlaggedAt = time.Time{}
	default:
		return state, nil
	}
	state.Version = evt.Version
	state.UpdatedAt = evt.Timestamp
	return state, nil
}
