package app

import (
	"context"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/unitresult"
)

// ResultRef addresses one unit result.
type ResultRef struct {
	ContestID string
	ItemID    string
	UnitID    string
	// ExpectedVersion, when set, fails the command with a concurrency
	// conflict if the result moved past it. It disables retries.
	ExpectedVersion *uint64
}

// StreamID returns the derived unit result stream id.
func (r ResultRef) StreamID() string {
	return identity.UnitResultID(r.ContestID, r.ItemID, r.UnitID)
}

// StartSubmission starts the result of an item at a reporting unit. Starting
// an already started result with the same parameters is a no-op.
func (s *Service) StartSubmission(ctx context.Context, actor Actor, ref ResultRef) (unitresult.State, error) {
	sl, err := s.resolveSlot(ctx, actor, ref.ContestID, ref.ItemID, ref.UnitID)
	if err != nil {
		return unitresult.State{}, err
	}
	return s.resultCommand(ctx, actor, ref, unitresult.CommandTypeStart, unitresult.StartPayload{
		ItemID:            sl.item.ID,
		UnitID:            sl.unit.ID,
		TestingPhaseEnded: sl.contest.State.TestingPhaseEnded(),
	})
}

// RecordStatistics replaces the voting card and voter sub-totals of a result.
func (s *Service) RecordStatistics(ctx context.Context, actor Actor, ref ResultRef, stats rollup.Statistics) (unitresult.State, error) {
	if _, err := s.resolveSlot(ctx, actor, ref.ContestID, ref.ItemID, ref.UnitID); err != nil {
		return unitresult.State{}, err
	}
	return s.resultCommand(ctx, actor, ref, unitresult.CommandTypeRecordStatistics, unitresult.StatisticsPayload{
		VotingCards: stats.VotingCards,
		VoterInfo:   stats.VoterInfo,
	})
}

// SubmitResult marks the submission done. Every bundle must be settled.
func (s *Service) SubmitResult(ctx context.Context, actor Actor, ref ResultRef) (unitresult.State, error) {
	return s.transitionResult(ctx, actor, ref, unitresult.CommandTypeSubmit, nil)
}

// AuditResult records a tentative audit.
func (s *Service) AuditResult(ctx context.Context, actor Actor, ref ResultRef) (unitresult.State, error) {
	return s.transitionResult(ctx, actor, ref, unitresult.CommandTypeAudit, nil)
}

// FlagForCorrection sends a submitted result back with a reason.
func (s *Service) FlagForCorrection(ctx context.Context, actor Actor, ref ResultRef, reason string) (unitresult.State, error) {
	return s.transitionResult(ctx, actor, ref, unitresult.CommandTypeFlagForCorrection, unitresult.FlagPayload{Reason: reason})
}

// CorrectResult reopens a flagged result for entry.
func (s *Service) CorrectResult(ctx context.Context, actor Actor, ref ResultRef) (unitresult.State, error) {
	return s.transitionResult(ctx, actor, ref, unitresult.CommandTypeCorrect, nil)
}

// FinalizeResult plausibilises a result. It fails while bundles are pending.
func (s *Service) FinalizeResult(ctx context.Context, actor Actor, ref ResultRef) (unitresult.State, error) {
	return s.transitionResult(ctx, actor, ref, unitresult.CommandTypeFinalize, nil)
}

// ResetResult appends the compensating reset of a non-final result.
func (s *Service) ResetResult(ctx context.Context, actor Actor, ref ResultRef) (unitresult.State, error) {
	return s.transitionResult(ctx, actor, ref, unitresult.CommandTypeReset, nil)
}

func (s *Service) transitionResult(ctx context.Context, actor Actor, ref ResultRef, t command.Type, payload any) (unitresult.State, error) {
	if _, err := s.resolveSlot(ctx, actor, ref.ContestID, ref.ItemID, ref.UnitID); err != nil {
		return unitresult.State{}, err
	}
	return s.resultCommand(ctx, actor, ref, t, payload)
}

func (s *Service) resultCommand(ctx context.Context, actor Actor, ref ResultRef, t command.Type, payload any) (unitresult.State, error) {
	cmd, err := newCommand(actor, ref.ContestID, ref.StreamID(), t, payload)
	if err != nil {
		return unitresult.State{}, err
	}
	if ref.ExpectedVersion != nil {
		cmd.ExpectedVersion = ref.ExpectedVersion
		result, err := s.results.Execute(ctx, cmd)
		return result.State, err
	}
	return s.executeResult(ctx, cmd)
}

// UnitResult returns the current state of a result.
func (s *Service) UnitResult(ctx context.Context, ref ResultRef) (unitresult.State, error) {
	state, _, err := s.results.Load(ctx, ref.StreamID())
	if err != nil {
		return unitresult.State{}, err
	}
	if !state.Created {
		return unitresult.State{}, apperrors.WithMetadata(apperrors.CodeNotFound, "unit result not started",
			map[string]string{apperrors.MetaStreamID: ref.StreamID()})
	}
	return state, nil
}
