package app

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/bundle"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/unitresult"
)

// EnterBundleRequest registers a numbered bundle under a unit result.
type EnterBundleRequest struct {
	Result      ResultRef
	Number      int
	ListID      string
	EntryParams bundle.EntryParams
}

// EnterBundle reserves the bundle number on the unit result and then creates
// the bundle stream. Repeating the request with the same number resumes an
// entry that stopped between the two appends.
func (s *Service) EnterBundle(ctx context.Context, actor Actor, req EnterBundleRequest) (string, bundle.State, error) {
	ref := req.Result
	sl, err := s.resolveSlot(ctx, actor, ref.ContestID, ref.ItemID, ref.UnitID)
	if err != nil {
		return "", bundle.State{}, err
	}
	resultID := ref.StreamID()
	bundleID := identity.BundleID(ref.ContestID, resultID, req.Number)
	create := bundle.CreatePayload{
		ResultID:    resultID,
		ItemID:      sl.item.ID,
		UnitID:      sl.unit.ID,
		Kind:        sl.item.Kind,
		ListID:      strings.TrimSpace(req.ListID),
		Number:      req.Number,
		EntryParams: req.EntryParams,
		Definition:  sl.item.Definition,
	}
	if err := bundle.ValidateCreate(create); err != nil {
		return "", bundle.State{}, err
	}

	if _, err := s.resultCommand(ctx, actor, ref, unitresult.CommandTypeEnterBundleNumber, unitresult.EnterBundleNumberPayload{
		BundleID: bundleID,
		Number:   req.Number,
		Policy:   string(sl.item.Definition.NumberingPolicy()),
	}); err != nil {
		return "", bundle.State{}, err
	}

	cmd, err := newCommand(actor, ref.ContestID, bundleID, bundle.CommandTypeCreate, create)
	if err != nil {
		return "", bundle.State{}, err
	}
	state, err := s.executeBundle(ctx, cmd)
	if err != nil {
		return "", bundle.State{}, fmt.Errorf("create bundle %d of %s: %w", req.Number, resultID, err)
	}
	return bundleID, state, nil
}

// BundleRef addresses one bundle.
type BundleRef struct {
	ContestID string
	BundleID  string
}

// CreateBallot appends the next ballot of a bundle.
func (s *Service) CreateBallot(ctx context.Context, actor Actor, ref BundleRef, number int, content bundle.BallotContent) (bundle.State, error) {
	return s.bundleCommand(ctx, actor, ref, bundle.CommandTypeCreateBallot, bundle.BallotPayload{Number: number, Content: content})
}

// UpdateBallot replaces the content of an entered ballot.
func (s *Service) UpdateBallot(ctx context.Context, actor Actor, ref BundleRef, number int, content bundle.BallotContent) (bundle.State, error) {
	return s.bundleCommand(ctx, actor, ref, bundle.CommandTypeUpdateBallot, bundle.BallotPayload{Number: number, Content: content})
}

// DeleteBallot removes the last ballot of a bundle.
func (s *Service) DeleteBallot(ctx context.Context, actor Actor, ref BundleRef, number int) (bundle.State, error) {
	return s.bundleCommand(ctx, actor, ref, bundle.CommandTypeDeleteBallot, bundle.DeleteBallotPayload{Number: number})
}

// SubmitBundle hands a bundle to review.
func (s *Service) SubmitBundle(ctx context.Context, actor Actor, ref BundleRef) (bundle.State, error) {
	return s.bundleCommand(ctx, actor, ref, bundle.CommandTypeSubmit, nil)
}

// ReviewBundle accepts or rejects a submitted bundle. An accepted bundle no
// longer blocks its unit result.
func (s *Service) ReviewBundle(ctx context.Context, actor Actor, ref BundleRef, accept bool, reason string) (bundle.State, error) {
	state, err := s.bundleCommand(ctx, actor, ref, bundle.CommandTypeReview, bundle.ReviewPayload{Accept: accept, Reason: reason})
	if err != nil || !accept {
		return state, err
	}
	if err := s.settle(ctx, actor, ref, state, unitresult.SettleReviewed); err != nil {
		return state, err
	}
	return state, nil
}

// ApproveBundle approves a reviewed bundle.
func (s *Service) ApproveBundle(ctx context.Context, actor Actor, ref BundleRef) (bundle.State, error) {
	return s.bundleCommand(ctx, actor, ref, bundle.CommandTypeApprove, nil)
}

// DeleteBundle deletes a bundle that is not approved. Its number stays used.
func (s *Service) DeleteBundle(ctx context.Context, actor Actor, ref BundleRef) (bundle.State, error) {
	state, err := s.bundleCommand(ctx, actor, ref, bundle.CommandTypeDelete, nil)
	if err != nil {
		return state, err
	}
	if err := s.settle(ctx, actor, ref, state, unitresult.SettleDeleted); err != nil {
		return state, err
	}
	return state, nil
}

// settle releases a reviewed or deleted bundle on its unit result.
func (s *Service) settle(ctx context.Context, actor Actor, ref BundleRef, state bundle.State, reason string) error {
	result := ResultRef{ContestID: ref.ContestID, ItemID: state.ItemID, UnitID: state.UnitID}
	if result.StreamID() != state.ResultID {
		return apperrors.WithMetadata(apperrors.CodeConsistencyCheckFailed,
			fmt.Sprintf("bundle %s points at result %s", ref.BundleID, state.ResultID),
			map[string]string{apperrors.MetaStreamID: ref.BundleID})
	}
	cmd, err := newCommand(actor, ref.ContestID, state.ResultID, unitresult.CommandTypeSettleBundle, unitresult.SettleBundlePayload{
		BundleID: ref.BundleID,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	if _, err := s.executeResult(ctx, cmd); err != nil {
		return fmt.Errorf("settle bundle %s on %s: %w", ref.BundleID, state.ResultID, err)
	}
	return nil
}

// SettleBundles settles every reviewed, approved or deleted bundle of a
// result that its pending counter still holds, and returns how many it
// settled. It completes reviews and deletions that stopped after the bundle
// append.
func (s *Service) SettleBundles(ctx context.Context, actor Actor, ref ResultRef) (int, error) {
	if _, err := s.resolveSlot(ctx, actor, ref.ContestID, ref.ItemID, ref.UnitID); err != nil {
		return 0, err
	}
	result, err := s.UnitResult(ctx, ref)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, bundleID := range result.PendingBundles() {
		state, _, err := s.bundles.Load(ctx, bundleID)
		if err != nil {
			return settled, err
		}
		if !state.Created || state.Pending() {
			continue
		}
		reason := unitresult.SettleReviewed
		if state.Status == bundle.StatusDeleted {
			reason = unitresult.SettleDeleted
		}
		if err := s.settle(ctx, actor, BundleRef{ContestID: ref.ContestID, BundleID: bundleID}, state, reason); err != nil {
			return settled, err
		}
		settled++
	}
	return settled, nil
}

func (s *Service) bundleCommand(ctx context.Context, actor Actor, ref BundleRef, t command.Type, payload any) (bundle.State, error) {
	current, err := s.Bundle(ctx, ref)
	if err != nil {
		return bundle.State{}, err
	}
	if _, err := s.resolveSlot(ctx, actor, ref.ContestID, current.ItemID, current.UnitID); err != nil {
		return bundle.State{}, err
	}
	cmd, err := newCommand(actor, ref.ContestID, ref.BundleID, t, payload)
	if err != nil {
		return bundle.State{}, err
	}
	return s.executeBundle(ctx, cmd)
}

// Bundle returns the current state of a bundle. A bundle whose stored ballot
// count disagrees with its ballots fails with CONSISTENCY_CHECK_FAILED.
func (s *Service) Bundle(ctx context.Context, ref BundleRef) (bundle.State, error) {
	state, _, err := s.bundles.Load(ctx, ref.BundleID)
	if err != nil {
		return bundle.State{}, err
	}
	if !state.Created || state.ContestID != ref.ContestID {
		return bundle.State{}, apperrors.WithMetadata(apperrors.CodeNotFound, "bundle not found",
			map[string]string{apperrors.MetaStreamID: ref.BundleID})
	}
	if err := bundle.CheckConsistency(ref.BundleID, state); err != nil {
		return state, err
	}
	return state, nil
}

// ListBundles returns the bundles created under a result ordered by number.
func (s *Service) ListBundles(ctx context.Context, ref ResultRef) ([]bundle.State, error) {
	streams, err := s.store.ListChildStreams(ctx, ref.StreamID())
	if err != nil {
		return nil, fmt.Errorf("list bundles of %s: %w", ref.StreamID(), err)
	}
	out := make([]bundle.State, 0, len(streams))
	for _, stream := range streams {
		state, err := s.Bundle(ctx, BundleRef{ContestID: ref.ContestID, BundleID: stream.StreamID})
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	sortBundles(out)
	return out, nil
}
