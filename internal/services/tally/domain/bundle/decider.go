package bundle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
)

const (
	CommandTypeCreate       command.Type = "bundle.create"
	CommandTypeCreateBallot command.Type = "bundle.create_ballot"
	CommandTypeUpdateBallot command.Type = "bundle.update_ballot"
	CommandTypeDeleteBallot command.Type = "bundle.delete_ballot"
	CommandTypeSubmit       command.Type = "bundle.submit"
	CommandTypeReview       command.Type = "bundle.review"
	CommandTypeApprove      command.Type = "bundle.approve"
	CommandTypeDelete       command.Type = "bundle.delete"

	EventTypeCreated        event.Type = "bundle.created"
	EventTypeBallotCreated  event.Type = "bundle.ballot_created"
	EventTypeBallotUpdated  event.Type = "bundle.ballot_updated"
	EventTypeBallotDeleted  event.Type = "bundle.ballot_deleted"
	EventTypeSubmitted      event.Type = "bundle.submitted"
	EventTypeReviewed       event.Type = "bundle.reviewed"
	EventTypeReviewRejected event.Type = "bundle.review_rejected"
	EventTypeApproved       event.Type = "bundle.approved"
	EventTypeDeleted        event.Type = "bundle.deleted"
)

// Decide returns the decision for a bundle command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	if cmd.Type == CommandTypeCreate {
		return decideCreate(state, cmd, now)
	}
	if !state.Created {
		return command.Reject(rejection(apperrors.CodeNotFound, "bundle does not exist"))
	}
	switch cmd.Type {
	case CommandTypeCreateBallot:
		return decideCreateBallot(state, cmd, now)
	case CommandTypeUpdateBallot:
		return decideUpdateBallot(state, cmd, now)
	case CommandTypeDeleteBallot:
		return decideDeleteBallot(state, cmd, now)
	case CommandTypeSubmit:
		if state.Status != StatusInProcess {
			return command.Reject(invalidTransition(state, cmd))
		}
		if state.BallotCount == 0 {
			return command.Reject(rejectionWithState(apperrors.CodeInvalidStateTransition, state, cmd, "an empty bundle cannot be submitted"))
		}
		return command.Accept(statusEvent(state, cmd, EventTypeSubmitted, StatusSubmitted, "", now))
	case CommandTypeReview:
		return decideReview(state, cmd, now)
	case CommandTypeApprove:
		if state.Status != StatusReviewed {
			return command.Reject(invalidTransition(state, cmd))
		}
		return command.Accept(statusEvent(state, cmd, EventTypeApproved, StatusApproved, "", now))
	case CommandTypeDelete:
		if state.Status == StatusApproved || state.Status == StatusDeleted {
			return command.Reject(invalidTransition(state, cmd))
		}
		return command.Accept(statusEvent(state, cmd, EventTypeDeleted, StatusDeleted, "", now))
	}
	return command.Reject(rejection(apperrors.CodeValidation, fmt.Sprintf("unsupported command %s", cmd.Type)))
}

func decideCreate(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload CreatePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.ResultID = strings.TrimSpace(payload.ResultID)
	payload.ListID = strings.TrimSpace(payload.ListID)
	if state.Created {
		if state.ResultID == payload.ResultID && state.Number == payload.Number {
			return command.Decision{}
		}
		return command.Reject(rejection(apperrors.CodeInvalidBundleNumber, "bundle already exists"))
	}
	if err := ValidateCreate(payload); err != nil {
		return command.Reject(rejection(apperrors.CodeOf(err), err.Error()))
	}
	if cmd.StreamID != identity.BundleID(cmd.ContestID, payload.ResultID, payload.Number) {
		return command.Reject(rejection(apperrors.CodeValidation, "stream id does not match result and number"))
	}
	payloadJSON, _ := json.Marshal(payload)
	evt := command.NewEvent(cmd, event.StreamBundle, EventTypeCreated, payloadJSON, now().UTC())
	evt.ParentStreamID = payload.ResultID
	evt.ItemID = payload.ItemID
	evt.UnitID = payload.UnitID
	return command.Accept(evt)
}

// ValidateCreate checks a create payload without any stream state, so callers
// can reject it before reserving the bundle number.
func ValidateCreate(payload CreatePayload) error {
	if strings.TrimSpace(payload.ResultID) == "" || payload.ItemID == "" || payload.UnitID == "" {
		return apperrors.New(apperrors.CodeValidation, "result, item and unit ids are required")
	}
	if payload.Number <= 0 {
		return apperrors.New(apperrors.CodeInvalidBundleNumber, "bundle number must be positive")
	}
	item := hierarchy.Item{ID: payload.ItemID, Kind: payload.Kind, Definition: payload.Definition}
	if err := item.Validate(); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}
	listID := strings.TrimSpace(payload.ListID)
	if listID != "" && (payload.Kind != hierarchy.KindProportionalElection || !payload.Definition.HasList(listID)) {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("list %s is not part of item %s", listID, payload.ItemID))
	}
	if payload.EntryParams.BundleSize < 0 {
		return apperrors.New(apperrors.CodeValidation, "bundle size must not be negative")
	}
	return nil
}

func decideCreateBallot(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Status != StatusCreated && state.Status != StatusInProcess {
		return command.Reject(invalidTransition(state, cmd))
	}
	var payload BallotPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Number != state.BallotCount+1 {
		return command.Reject(rejection(apperrors.CodeValidation, fmt.Sprintf("ballot number must be %d", state.BallotCount+1)))
	}
	if size := state.EntryParams.BundleSize; size > 0 && state.BallotCount >= size {
		return command.Reject(rejection(apperrors.CodeValidation, fmt.Sprintf("bundle is full at %d ballots", size)))
	}
	content, err := normalizeBallot(state.Kind, state.Definition, state.ListID, state.EntryParams, payload.Content)
	if err != nil {
		return command.Reject(rejection(apperrors.CodeInvalidBallotContent, err.Error()))
	}
	payloadJSON, _ := json.Marshal(BallotEventPayload{Number: payload.Number, Content: content, BallotCount: state.BallotCount + 1})
	return command.Accept(newEvent(state, cmd, EventTypeBallotCreated, payloadJSON, now))
}

func decideUpdateBallot(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Status != StatusInProcess {
		return command.Reject(invalidTransition(state, cmd))
	}
	var payload BallotPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Number < 1 || payload.Number > state.BallotCount {
		return command.Reject(rejection(apperrors.CodeNotFound, fmt.Sprintf("ballot %d does not exist", payload.Number)))
	}
	content, err := normalizeBallot(state.Kind, state.Definition, state.ListID, state.EntryParams, payload.Content)
	if err != nil {
		return command.Reject(rejection(apperrors.CodeInvalidBallotContent, err.Error()))
	}
	payloadJSON, _ := json.Marshal(BallotEventPayload{Number: payload.Number, Content: content, BallotCount: state.BallotCount})
	return command.Accept(newEvent(state, cmd, EventTypeBallotUpdated, payloadJSON, now))
}

func decideDeleteBallot(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Status != StatusInProcess {
		return command.Reject(invalidTransition(state, cmd))
	}
	var payload DeleteBallotPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Number < 1 || payload.Number != state.BallotCount {
		return command.Reject(rejection(apperrors.CodeValidation, "only the last ballot can be deleted"))
	}
	payloadJSON, _ := json.Marshal(BallotDeletedPayload{Number: payload.Number, BallotCount: state.BallotCount - 1})
	return command.Accept(newEvent(state, cmd, EventTypeBallotDeleted, payloadJSON, now))
}

func decideReview(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Status != StatusSubmitted {
		return command.Reject(invalidTransition(state, cmd))
	}
	if cmd.ActorID == state.CreatedBy {
		return command.Reject(rejectionWithState(apperrors.CodeReviewerIsCreator, state, cmd, "the creator of a bundle cannot review it"))
	}
	var payload ReviewPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Accept {
		return command.Accept(statusEvent(state, cmd, EventTypeReviewed, StatusReviewed, "", now))
	}
	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		return command.Reject(rejection(apperrors.CodeValidation, "rejecting a bundle requires a reason"))
	}
	return command.Accept(statusEvent(state, cmd, EventTypeReviewRejected, StatusInProcess, reason, now))
}

func statusEvent(state State, cmd command.Command, t event.Type, to Status, reason string, now func() time.Time) event.Event {
	payloadJSON, _ := json.Marshal(StatusPayload{From: state.Status, To: to, BallotCount: state.BallotCount, Reason: reason})
	return newEvent(state, cmd, t, payloadJSON, now)
}

func newEvent(state State, cmd command.Command, t event.Type, payloadJSON []byte, now func() time.Time) event.Event {
	evt := command.NewEvent(cmd, event.StreamBundle, t, payloadJSON, now().UTC())
	evt.ParentStreamID = state.ResultID
	evt.ItemID = state.ItemID
	evt.UnitID = state.UnitID
	return evt
}

func rejection(code apperrors.Code, msg string) command.Rejection {
	return command.Rejection{Code: string(code), Message: msg}
}

func rejectionWithState(code apperrors.Code, state State, cmd command.Command, msg string) command.Rejection {
	return command.Rejection{
		Code:    string(code),
		Message: msg,
		Metadata: map[string]string{
			apperrors.MetaState:   string(state.Status),
			apperrors.MetaCommand: string(cmd.Type),
		},
	}
}

func invalidTransition(state State, cmd command.Command) command.Rejection {
	return rejectionWithState(apperrors.CodeInvalidStateTransition, state, cmd,
		fmt.Sprintf("%s is not allowed while the bundle is %s", cmd.Type, state.Status))
}
