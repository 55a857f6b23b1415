package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

// FoldHandledTypes returns the event types handled by Fold.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		EventTypeCreated,
		EventTypeBallotCreated,
		EventTypeBallotUpdated,
		EventTypeBallotDeleted,
		EventTypeSubmitted,
		EventTypeReviewed,
		EventTypeReviewRejected,
		EventTypeApproved,
		EventTypeDeleted,
	}
}

// Fold applies an event to bundle state. The ballot slice is copied before
// it changes.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeCreated:
		var payload CreatePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("bundle fold %s: %w", evt.Type, err)
		}
		state.Created = true
		state.ContestID = evt.ContestID
		state.ResultID = payload.ResultID
		state.ItemID = payload.ItemID
		state.UnitID = payload.UnitID
		state.ListID = payload.ListID
		state.Kind = payload.Kind
		state.Number = payload.Number
		state.EntryParams = payload.EntryParams
		state.Definition = payload.Definition
		state.CreatedBy = evt.ActorID
		state.CreatedAt = evt.Timestamp
		state.Status = StatusCreated
	case EventTypeBallotCreated:
		var payload BallotEventPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("bundle fold %s: %w", evt.Type, err)
		}
		state.Ballots = append(append([]Ballot(nil), state.Ballots...), Ballot{
			Number:    payload.Number,
			Content:   payload.Content,
			EnteredBy: evt.ActorID,
		})
		state.BallotCount = payload.BallotCount
		state.Status = StatusInProcess
	case EventTypeBallotUpdated:
		var payload BallotEventPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("bundle fold %s: %w", evt.Type, err)
		}
		if payload.Number < 1 || payload.Number > len(state.Ballots) {
			return state, fmt.Errorf("bundle fold %s: unknown ballot %d", evt.Type, payload.Number)
		}
		state.Ballots = append([]Ballot(nil), state.Ballots...)
		state.Ballots[payload.Number-1] = Ballot{Number: payload.Number, Content: payload.Content, EnteredBy: evt.ActorID}
		state.BallotCount = payload.BallotCount
	case EventTypeBallotDeleted:
		var payload BallotDeletedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("bundle fold %s: %w", evt.Type, err)
		}
		if n := len(state.Ballots); n > 0 && state.Ballots[n-1].Number == payload.Number {
			state.Ballots = append([]Ballot(nil), state.Ballots[:n-1]...)
		}
		state.BallotCount = payload.BallotCount
	case EventTypeSubmitted, EventTypeReviewed, EventTypeReviewRejected, EventTypeApproved, EventTypeDeleted:
		var payload StatusPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("bundle fold %s: %w", evt.Type, err)
		}
		state.Status = payload.To
		state.BallotCount = payload.BallotCount
		switch evt.Type {
		case EventTypeSubmitted:
			state.SubmittedAt = evt.Timestamp
		case EventTypeReviewed:
			state.ReviewedBy = evt.ActorID
			state.ReviewedAt = evt.Timestamp
			state.RejectionReason = ""
		case EventTypeReviewRejected:
			state.ReviewedBy = evt.ActorID
			state.ReviewedAt = evt.Timestamp
			state.RejectionReason = payload.Reason
		case EventTypeApproved:
			state.ApprovedAt = evt.Timestamp
		case EventTypeDeleted:
			state.DeletedAt = evt.Timestamp
		}
	default:
		return state, nil
	}
	state.Version = evt.Version
	state.UpdatedAt = evt.Timestamp
	return state, nil
}
