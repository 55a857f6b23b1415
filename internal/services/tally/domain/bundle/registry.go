package bundle

import (
	"encoding/json"
	"errors"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

// RegisterCommands registers bundle commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	defs := []command.Definition{
		{Type: CommandTypeCreate, ValidatePayload: validateCreatePayload},
		{Type: CommandTypeCreateBallot, ValidatePayload: shape[BallotPayload]},
		{Type: CommandTypeUpdateBallot, ValidatePayload: shape[BallotPayload]},
		{Type: CommandTypeDeleteBallot, ValidatePayload: shape[DeleteBallotPayload]},
		{Type: CommandTypeSubmit},
		{Type: CommandTypeReview, ValidatePayload: shape[ReviewPayload]},
		{Type: CommandTypeApprove},
		{Type: CommandTypeDelete},
	}
	for _, def := range defs {
		def.Stream = event.StreamBundle
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents registers bundle events with the shared registry. Every
// bundle event names its parent unit result stream.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	validators := map[event.Type]event.PayloadValidator{
		EventTypeCreated:        validateCreatePayload,
		EventTypeBallotCreated:  shape[BallotEventPayload],
		EventTypeBallotUpdated:  shape[BallotEventPayload],
		EventTypeBallotDeleted:  shape[BallotDeletedPayload],
		EventTypeSubmitted:      shape[StatusPayload],
		EventTypeReviewed:       shape[StatusPayload],
		EventTypeReviewRejected: shape[StatusPayload],
		EventTypeApproved:       shape[StatusPayload],
		EventTypeDeleted:        shape[StatusPayload],
	}
	for _, t := range FoldHandledTypes() {
		if err := registry.Register(event.Definition{
			Type:            t,
			Stream:          event.StreamBundle,
			RequireParent:   true,
			ValidatePayload: validators[t],
		}); err != nil {
			return err
		}
	}
	return nil
}

func validateCreatePayload(raw json.RawMessage) error {
	var payload CreatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.ResultID == "" {
		return errors.New("result id is required")
	}
	return nil
}

// shape ensures a payload decodes into T.
func shape[T any](raw json.RawMessage) error {
	var payload T
	return json.Unmarshal(raw, &payload)
}
