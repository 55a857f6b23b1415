package unitresult

import (
	"encoding/json"
	"errors"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

// RegisterCommands registers unit result commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	defs := []command.Definition{
		{Type: CommandTypeStart, ValidatePayload: shape[StartPayload]},
		{Type: CommandTypeEnterBundleNumber, ValidatePayload: shape[EnterBundleNumberPayload]},
		{Type: CommandTypeSettleBundle, ValidatePayload: shape[SettleBundlePayload]},
		{Type: CommandTypeRecordStatistics, ValidatePayload: shape[StatisticsPayload]},
		{Type: CommandTypeSubmit},
		{Type: CommandTypeAudit},
		{Type: CommandTypeFlagForCorrection, ValidatePayload: shape[FlagPayload]},
		{Type: CommandTypeCorrect},
		{Type: CommandTypeFinalize},
		{Type: CommandTypeReset},
	}
	for _, def := range defs {
		def.Stream = event.StreamUnitResult
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents registers unit result events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	validators := map[event.Type]event.PayloadValidator{
		EventTypeSubmissionStarted:    shape[StartPayload],
		EventTypeBundleNumberEntered:  shape[BundleNumberEnteredPayload],
		EventTypeBundleSettled:        shape[SettleBundlePayload],
		EventTypeStatisticsRecorded:   shape[StatisticsPayload],
		EventTypeSubmitted:            shape[TransitionPayload],
		EventTypeAudited:              shape[TransitionPayload],
		EventTypeFlaggedForCorrection: shape[FlagPayload],
		EventTypeCorrectionStarted:    shape[TransitionPayload],
		EventTypeFinalized:            shape[TransitionPayload],
		EventTypeReset:                shape[TransitionPayload],
	}
	for _, t := range FoldHandledTypes() {
		if err := registry.Register(event.Definition{
			Type:            t,
			Stream:          event.StreamUnitResult,
			ValidatePayload: validators[t],
		}); err != nil {
			return err
		}
	}
	return nil
}

// shape ensures a payload decodes into T.
func shape[T any](raw json.RawMessage) error {
	var payload T
	return json.Unmarshal(raw, &payload)
}
