package unitresult

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
)

var testNow = time.Date(2026, 6, 14, 10, 0, 0, 0, time.UTC)

var resultID = identity.UnitResultID("contest-1", "e1", "bern")

func cmd(t command.Type, payload any) command.Command {
	var raw []byte
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return command.Command{
		ContestID:   "contest-1",
		Type:        t,
		StreamID:    resultID,
		ActorID:     "user-1",
		PayloadJSON: raw,
	}
}

// apply decides c against state and folds the accepted events.
func apply(t *testing.T, state State, c command.Command) (State, command.Decision) {
	t.Helper()
	decision := Decide(state, c, func() time.Time { return testNow })
	for _, evt := range decision.Events {
		evt.Version = state.Version + 1
		next, err := Fold(state, evt)
		if err != nil {
			t.Fatalf("fold %s: %v", evt.Type, err)
		}
		state = next
	}
	return state, decision
}

func mustAccept(t *testing.T, state State, c command.Command) State {
	t.Helper()
	next, decision := apply(t, state, c)
	if len(decision.Rejections) != 0 {
		t.Fatalf("%s rejected: %+v", c.Type, decision.Rejections)
	}
	return next
}

func wantRejection(t *testing.T, state State, c command.Command, code apperrors.Code) command.Rejection {
	t.Helper()
	_, decision := apply(t, state, c)
	if len(decision.Rejections) != 1 {
		t.Fatalf("%s: expected 1 rejection, got %+v", c.Type, decision)
	}
	if got := decision.Rejections[0].Code; got != string(code) {
		t.Fatalf("%s: rejection code = %s, want %s", c.Type, got, code)
	}
	return decision.Rejections[0]
}

func started(t *testing.T) State {
	t.Helper()
	return mustAccept(t, State{}, cmd(CommandTypeStart, StartPayload{ItemID: "e1", UnitID: "bern", TestingPhaseEnded: true}))
}

func enter(bundleID string, number int, policy string) command.Command {
	return cmd(CommandTypeEnterBundleNumber, EnterBundleNumberPayload{BundleID: bundleID, Number: number, Policy: policy})
}

func settle(bundleID, reason string) command.Command {
	return cmd(CommandTypeSettleBundle, SettleBundlePayload{BundleID: bundleID, Reason: reason})
}

func TestStartSubmission(t *testing.T) {
	state := started(t)
	if state.Status != StatusSubmissionInProgress {
		t.Fatalf("status = %s, want %s", state.Status, StatusSubmissionInProgress)
	}
	if state.Version != 1 || !state.StartedAt.Equal(testNow) {
		t.Fatalf("version = %d started = %s", state.Version, state.StartedAt)
	}

	_, decision := apply(t, state, cmd(CommandTypeStart, StartPayload{ItemID: "e1", UnitID: "bern", TestingPhaseEnded: true}))
	if len(decision.Events) != 0 || len(decision.Rejections) != 0 {
		t.Fatalf("expected idempotent empty decision, got %+v", decision)
	}

	wantRejection(t, state, cmd(CommandTypeStart, StartPayload{ItemID: "e1", UnitID: "bern", TestingPhaseEnded: false}), apperrors.CodeAlreadyStarted)
}

func TestStartSubmissionRejectsForeignStream(t *testing.T) {
	wantRejection(t, State{}, cmd(CommandTypeStart, StartPayload{ItemID: "e2", UnitID: "bern"}), apperrors.CodeValidation)
	wantRejection(t, State{}, cmd(CommandTypeStart, StartPayload{ItemID: "e1"}), apperrors.CodeValidation)
}

func TestContinuousNumberingNeverReusesDeletedNumbers(t *testing.T) {
	state := started(t)
	for i, id := range []string{"b1", "b2", "b3"} {
		state = mustAccept(t, state, enter(id, i+1, "continuous"))
	}
	state = mustAccept(t, state, settle("b2", SettleDeleted))
	if state.Pending != 2 {
		t.Fatalf("pending = %d, want 2", state.Pending)
	}
	wantRejection(t, state, enter("b2", 2, "continuous"), apperrors.CodeInvalidBundleNumber)
	wantRejection(t, state, enter("b2-again", 2, "continuous"), apperrors.CodeInvalidBundleNumber)
	wantRejection(t, state, enter("b2-again", 2, "free"), apperrors.CodeInvalidBundleNumber)
	wantRejection(t, state, enter("b5", 5, "continuous"), apperrors.CodeInvalidBundleNumber)
	state = mustAccept(t, state, enter("b4", 4, "continuous"))
	if state.HighestNumber != 4 {
		t.Fatalf("highest = %d, want 4", state.HighestNumber)
	}
}

func TestFreeNumbering(t *testing.T) {
	state := started(t)
	state = mustAccept(t, state, enter("b7", 7, "free"))
	state = mustAccept(t, state, enter("b3", 3, "free"))
	wantRejection(t, state, enter("bx", 7, "free"), apperrors.CodeInvalidBundleNumber)
	wantRejection(t, state, enter("b0", 0, "free"), apperrors.CodeInvalidBundleNumber)
	wantRejection(t, state, enter("b9", 9, "shuffled"), apperrors.CodeValidation)
}

func TestEnterBundleNumberRetryIsIdempotent(t *testing.T) {
	state := mustAccept(t, started(t), enter("b1", 1, ""))
	next, decision := apply(t, state, enter("b1", 1, ""))
	if len(decision.Events) != 0 || len(decision.Rejections) != 0 {
		t.Fatalf("expected empty decision, got %+v", decision)
	}
	if next.Pending != 1 {
		t.Fatalf("pending = %d, want 1", next.Pending)
	}
	wantRejection(t, state, enter("b1", 2, ""), apperrors.CodeInvalidBundleNumber)
}

func TestFinalizeBlockedByPendingBundles(t *testing.T) {
	state := mustAccept(t, started(t), enter("b1", 1, ""))
	r := wantRejection(t, state, cmd(CommandTypeSubmit, nil), apperrors.CodePendingBundles)
	if r.Metadata["Pending"] != "1" {
		t.Fatalf("pending metadata = %q", r.Metadata["Pending"])
	}

	state = mustAccept(t, state, settle("b1", SettleReviewed))
	state = mustAccept(t, state, cmd(CommandTypeSubmit, nil))
	state = mustAccept(t, state, cmd(CommandTypeFinalize, nil))
	if !state.Final() {
		t.Fatalf("status = %s, want final", state.Status)
	}
	if state.FinalizedAt.IsZero() {
		t.Fatal("expected finalize timestamp")
	}
}

func TestSettleBundle(t *testing.T) {
	state := mustAccept(t, started(t), enter("b1", 1, ""))
	state = mustAccept(t, state, settle("b1", SettleReviewed))
	next, decision := apply(t, state, settle("b1", SettleDeleted))
	if len(decision.Events) != 0 || next.Pending != 0 {
		t.Fatalf("expected settle to apply once, pending = %d", next.Pending)
	}
	wantRejection(t, state, settle("nope", SettleReviewed), apperrors.CodeNotFound)
	wantRejection(t, state, settle("b1", "lost"), apperrors.CodeValidation)
}

func TestLifecycleTransitions(t *testing.T) {
	state := started(t)
	wantRejection(t, state, cmd(CommandTypeAudit, nil), apperrors.CodeInvalidStateTransition)
	wantRejection(t, state, cmd(CommandTypeCorrect, nil), apperrors.CodeInvalidStateTransition)

	state = mustAccept(t, state, cmd(CommandTypeSubmit, nil))
	wantRejection(t, state, enter("b1", 1, ""), apperrors.CodeInvalidStateTransition)
	wantRejection(t, state, cmd(CommandTypeFlagForCorrection, FlagPayload{Reason: " "}), apperrors.CodeValidation)

	state = mustAccept(t, state, cmd(CommandTypeAudit, nil))
	state = mustAccept(t, state, cmd(CommandTypeFlagForCorrection, FlagPayload{Reason: "turnout mismatch"}))
	if state.Status != StatusCorrected || state.CorrectionReason != "turnout mismatch" {
		t.Fatalf("state = %s / %q", state.Status, state.CorrectionReason)
	}
	state = mustAccept(t, state, cmd(CommandTypeCorrect, nil))
	if state.Status != StatusSubmissionInProgress {
		t.Fatalf("status = %s, want in progress", state.Status)
	}
	state = mustAccept(t, state, cmd(CommandTypeSubmit, nil))
	state = mustAccept(t, state, cmd(CommandTypeFinalize, nil))

	r := wantRejection(t, state, cmd(CommandTypeReset, nil), apperrors.CodeInvalidStateTransition)
	if r.Metadata[apperrors.MetaState] != string(StatusPlausibilised) {
		t.Fatalf("state metadata = %q", r.Metadata[apperrors.MetaState])
	}
	if state.Version != 7 {
		t.Fatalf("version = %d, want 7", state.Version)
	}
}

func TestResetKeepsReservedNumbers(t *testing.T) {
	state := mustAccept(t, started(t), enter("b1", 1, ""))
	state = mustAccept(t, state, cmd(CommandTypeRecordStatistics, StatisticsPayload{
		VotingCards: []rollup.VotingCardSubTotal{{Channel: rollup.ChannelMail, Valid: true, Count: 3}},
	}))
	wantRejection(t, state, cmd(CommandTypeReset, nil), apperrors.CodePendingBundles)
	state = mustAccept(t, state, settle("b1", SettleDeleted))
	state = mustAccept(t, state, cmd(CommandTypeReset, nil))
	if state.CurrentStatus() != StatusNotStarted {
		t.Fatalf("status = %s, want not started", state.Status)
	}
	if len(state.Statistics.VotingCards) != 0 {
		t.Fatal("expected reset to clear statistics")
	}

	state = mustAccept(t, state, cmd(CommandTypeStart, StartPayload{ItemID: "e1", UnitID: "bern", TestingPhaseEnded: true}))
	wantRejection(t, state, enter("b1b", 1, ""), apperrors.CodeInvalidBundleNumber)
	mustAccept(t, state, enter("b2", 2, ""))
}

func TestRecordStatistics(t *testing.T) {
	state := started(t)
	wantRejection(t, state, cmd(CommandTypeRecordStatistics, StatisticsPayload{
		VotingCards: []rollup.VotingCardSubTotal{
			{Channel: rollup.ChannelMail, Valid: true, Count: 1},
			{Channel: rollup.ChannelMail, Valid: true, Count: 2},
		},
	}), apperrors.CodeInvalidStatistics)
	wantRejection(t, state, cmd(CommandTypeRecordStatistics, StatisticsPayload{
		VoterInfo: []rollup.VoterInfoSubTotal{{Sex: "f", VoterType: "swiss", Count: -1}},
	}), apperrors.CodeInvalidStatistics)

	state = mustAccept(t, state, cmd(CommandTypeRecordStatistics, StatisticsPayload{
		VotingCards: []rollup.VotingCardSubTotal{
			{Channel: rollup.ChannelMail, Valid: true, Count: 4},
			{Channel: rollup.ChannelBallotBox, Valid: true, Count: 6},
		},
	}))
	if got := state.Statistics.VotingCards[0].Channel; got != rollup.ChannelBallotBox {
		t.Fatalf("first channel = %s, want normalized order", got)
	}
}

func TestFoldDoesNotMutateEarlierState(t *testing.T) {
	before := mustAccept(t, started(t), enter("b1", 1, ""))
	after := mustAccept(t, before, settle("b1", SettleReviewed))
	if before.Bundles["b1"].Settled {
		t.Fatal("expected earlier state to keep its own bundle map")
	}
	if !after.Bundles["b1"].Settled {
		t.Fatal("expected settled bundle")
	}
	if len(after.PendingBundles()) != 0 || len(before.PendingBundles()) != 1 {
		t.Fatal("unexpected pending bundles")
	}
}

func TestDecideUnknownCommand(t *testing.T) {
	wantRejection(t, State{}, cmd("unit_result.teleport", nil), apperrors.CodeValidation)
}
