package unitresult

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
)

const (
	CommandTypeStart             command.Type = "unit_result.start_submission"
	CommandTypeEnterBundleNumber command.Type = "unit_result.enter_bundle_number"
	CommandTypeSettleBundle      command.Type = "unit_result.settle_bundle"
	CommandTypeRecordStatistics  command.Type = "unit_result.record_statistics"
	CommandTypeSubmit            command.Type = "unit_result.submit"
	CommandTypeAudit             command.Type = "unit_result.audit"
	CommandTypeFlagForCorrection command.Type = "unit_result.flag_for_correction"
	CommandTypeCorrect           command.Type = "unit_result.correct"
	CommandTypeFinalize          command.Type = "unit_result.finalize"
	CommandTypeReset             command.Type = "unit_result.reset"

	EventTypeSubmissionStarted    event.Type = "unit_result.submission_started"
	EventTypeBundleNumberEntered  event.Type = "unit_result.bundle_number_entered"
	EventTypeBundleSettled        event.Type = "unit_result.bundle_settled"
	EventTypeStatisticsRecorded   event.Type = "unit_result.statistics_recorded"
	EventTypeSubmitted            event.Type = "unit_result.submitted"
	EventTypeAudited              event.Type = "unit_result.audited"
	EventTypeFlaggedForCorrection event.Type = "unit_result.flagged_for_correction"
	EventTypeCorrectionStarted    event.Type = "unit_result.correction_started"
	EventTypeFinalized            event.Type = "unit_result.finalized"
	EventTypeReset                event.Type = "unit_result.reset"
)

// transition describes a guarded status change without its own payload.
type transition struct {
	from          []Status
	to            Status
	event         event.Type
	requireSettle bool
}

var transitions = map[command.Type]transition{
	CommandTypeSubmit: {
		from:          []Status{StatusSubmissionInProgress},
		to:            StatusSubmissionDone,
		event:         EventTypeSubmitted,
		requireSettle: true,
	},
	CommandTypeAudit: {
		from:  []Status{StatusSubmissionDone},
		to:    StatusAuditedTentatively,
		event: EventTypeAudited,
	},
	CommandTypeCorrect: {
		from:  []Status{StatusCorrected},
		to:    StatusSubmissionInProgress,
		event: EventTypeCorrectionStarted,
	},
	CommandTypeFinalize: {
		from:          []Status{StatusSubmissionDone, StatusAuditedTentatively},
		to:            StatusPlausibilised,
		event:         EventTypeFinalized,
		requireSettle: true,
	},
	CommandTypeReset: {
		from:          []Status{StatusSubmissionInProgress, StatusSubmissionDone, StatusAuditedTentatively, StatusCorrected},
		to:            StatusNotStarted,
		event:         EventTypeReset,
		requireSettle: true,
	},
}

// Decide returns the decision for a unit result command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	switch cmd.Type {
	case CommandTypeStart:
		return decideStart(state, cmd, now)
	case CommandTypeEnterBundleNumber:
		return decideEnterBundleNumber(state, cmd, now)
	case CommandTypeSettleBundle:
		return decideSettleBundle(state, cmd, now)
	case CommandTypeRecordStatistics:
		return decideRecordStatistics(state, cmd, now)
	case CommandTypeFlagForCorrection:
		return decideFlag(state, cmd, now)
	}
	if tr, ok := transitions[cmd.Type]; ok {
		return decideTransition(state, cmd, tr, now)
	}
	return command.Reject(rejection(apperrors.CodeValidation, fmt.Sprintf("unsupported command %s", cmd.Type)))
}

func decideStart(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload StartPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.ItemID = strings.TrimSpace(payload.ItemID)
	payload.UnitID = strings.TrimSpace(payload.UnitID)
	if payload.ItemID == "" || payload.UnitID == "" {
		return command.Reject(rejection(apperrors.CodeValidation, "item id and unit id are required"))
	}
	if cmd.StreamID != identity.UnitResultID(cmd.ContestID, payload.ItemID, payload.UnitID) {
		return command.Reject(rejection(apperrors.CodeValidation, "stream id does not match item and unit"))
	}
	if state.Created {
		sameSlot := state.ItemID == payload.ItemID && state.UnitID == payload.UnitID
		if state.CurrentStatus() != StatusNotStarted {
			if sameSlot && state.TestingPhaseEnded == payload.TestingPhaseEnded {
				return command.Decision{}
			}
			return command.Reject(rejectionWithState(apperrors.CodeAlreadyStarted, state, cmd,
				"submission already started with different parameters"))
		}
		if !sameSlot {
			return command.Reject(rejectionWithState(apperrors.CodeAlreadyStarted, state, cmd,
				"result belongs to a different item or unit"))
		}
	}
	payloadJSON, _ := json.Marshal(payload)
	evt := newEvent(state, cmd, EventTypeSubmissionStarted, payloadJSON, now)
	evt.ItemID = payload.ItemID
	evt.UnitID = payload.UnitID
	return command.Accept(evt)
}

func decideEnterBundleNumber(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload EnterBundleNumberPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.BundleID = strings.TrimSpace(payload.BundleID)
	if payload.BundleID == "" {
		return command.Reject(rejection(apperrors.CodeValidation, "bundle id is required"))
	}
	policy, err := hierarchy.ParseNumberingPolicy(payload.Policy)
	if err != nil {
		return command.Reject(rejection(apperrors.CodeValidation, err.Error()))
	}
	if entry, ok := state.Bundles[payload.BundleID]; ok {
		if entry.Number == payload.Number && !entry.Settled {
			return command.Decision{}
		}
		if entry.Settled {
			return command.Reject(numberRejection(payload.Number, "bundle number was already used"))
		}
		return command.Reject(numberRejection(payload.Number, "bundle already holds a different number"))
	}
	if state.CurrentStatus() != StatusSubmissionInProgress {
		return command.Reject(invalidTransition(state, cmd))
	}
	if payload.Number <= 0 {
		return command.Reject(numberRejection(payload.Number, "bundle number must be positive"))
	}
	if _, used := state.UsedNumbers[payload.Number]; used {
		return command.Reject(numberRejection(payload.Number, "bundle number was already used"))
	}
	if policy == hierarchy.NumberingContinuous && payload.Number != state.HighestNumber+1 {
		return command.Reject(numberRejection(payload.Number,
			fmt.Sprintf("bundle number must be %d", state.HighestNumber+1)))
	}
	payloadJSON, _ := json.Marshal(BundleNumberEnteredPayload{BundleID: payload.BundleID, Number: payload.Number})
	return command.Accept(newEvent(state, cmd, EventTypeBundleNumberEntered, payloadJSON, now))
}

func decideSettleBundle(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload SettleBundlePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.BundleID = strings.TrimSpace(payload.BundleID)
	if payload.Reason != SettleReviewed && payload.Reason != SettleDeleted {
		return command.Reject(rejection(apperrors.CodeValidation, "settle reason must be reviewed or deleted"))
	}
	entry, ok := state.Bundles[payload.BundleID]
	if !ok {
		return command.Reject(rejection(apperrors.CodeNotFound, fmt.Sprintf("bundle %s is not registered on this result", payload.BundleID)))
	}
	if entry.Settled {
		return command.Decision{}
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(newEvent(state, cmd, EventTypeBundleSettled, payloadJSON, now))
}

func decideRecordStatistics(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.CurrentStatus() != StatusSubmissionInProgress {
		return command.Reject(invalidTransition(state, cmd))
	}
	var payload StatisticsPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	stats := rollup.Statistics{VotingCards: payload.VotingCards, VoterInfo: payload.VoterInfo}
	if err := stats.Valid(); err != nil {
		return command.Reject(rejection(apperrors.CodeInvalidStatistics, err.Error()))
	}
	stats = stats.Normalize()
	payloadJSON, _ := json.Marshal(StatisticsPayload{VotingCards: stats.VotingCards, VoterInfo: stats.VoterInfo})
	return command.Accept(newEvent(state, cmd, EventTypeStatisticsRecorded, payloadJSON, now))
}

func decideFlag(state State, cmd command.Command, now func() time.Time) command.Decision {
	status := state.CurrentStatus()
	if status != StatusSubmissionDone && status != StatusAuditedTentatively {
		return command.Reject(invalidTransition(state, cmd))
	}
	var payload FlagPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.Reason = strings.TrimSpace(payload.Reason)
	if payload.Reason == "" {
		return command.Reject(rejection(apperrors.CodeValidation, "a correction reason is required"))
	}
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(newEvent(state, cmd, EventTypeFlaggedForCorrection, payloadJSON, now))
}

func decideTransition(state State, cmd command.Command, tr transition, now func() time.Time) command.Decision {
	status := state.CurrentStatus()
	if !slices.Contains(tr.from, status) {
		return command.Reject(invalidTransition(state, cmd))
	}
	if tr.requireSettle && state.Pending > 0 {
		r := rejectionWithState(apperrors.CodePendingBundles, state, cmd,
			fmt.Sprintf("%d bundle(s) are not reviewed or deleted", state.Pending))
		r.Metadata["Pending"] = strconv.Itoa(state.Pending)
		return command.Reject(r)
	}
	payloadJSON, _ := json.Marshal(TransitionPayload{From: status, To: tr.to})
	return command.Accept(newEvent(state, cmd, tr.event, payloadJSON, now))
}

func newEvent(state State, cmd command.Command, t event.Type, payloadJSON []byte, now func() time.Time) event.Event {
	evt := command.NewEvent(cmd, event.StreamUnitResult, t, payloadJSON, now().UTC())
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
			apperrors.MetaState:   string(state.CurrentStatus()),
			apperrors.MetaCommand: string(cmd.Type),
		},
	}
}

func invalidTransition(state State, cmd command.Command) command.Rejection {
	return rejectionWithState(apperrors.CodeInvalidStateTransition, state, cmd,
		fmt.Sprintf("%s is not allowed while the result is %s", cmd.Type, state.CurrentStatus()))
}

func numberRejection(number int, msg string) command.Rejection {
	return command.Rejection{
		Code:     string(apperrors.CodeInvalidBundleNumber),
		Message:  msg,
		Metadata: map[string]string{"Number": strconv.Itoa(number)},
	}
}
