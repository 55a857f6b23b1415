package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/platform/id"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/bundle"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/engine"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/unitresult"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
)

// Actor is the acting user and tenant supplied by the identity collaborator.
type Actor struct {
	UserID   string
	TenantID string
}

// Options configures a Service.
type Options struct {
	// RemovalPolicy decides what a snapshot rebuild does with removed units
	// that already carry results.
	RemovalPolicy hierarchy.RemovalPolicy
	// RetryAttempts bounds retries after concurrency conflicts.
	RetryAttempts int
	// Keyring verifies event signatures. Nil skips signature checks.
	Keyring *integrity.Keyring
	Now     func() time.Time
}

// Service is the tally command and query surface.
type Service struct {
	store    storage.Store
	results  engine.Handler[unitresult.State]
	bundles  engine.Handler[bundle.State]
	policy   hierarchy.RemovalPolicy
	attempts int
	keyring  *integrity.Keyring
	now      func() time.Time
}

// New builds a service over store.
func New(store storage.Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	registries, err := engine.BuildRegistries()
	if err != nil {
		return nil, fmt.Errorf("build registries: %w", err)
	}
	policy := opts.RemovalPolicy
	if policy == "" {
		policy = hierarchy.RemovalKeepWithResults
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: store,
		results: engine.Handler[unitresult.State]{
			Stream:   event.StreamUnitResult,
			Commands: registries.Commands,
			Events:   registries.Events,
			Store:    store,
			Decide:   unitresult.Decide,
			Fold:     unitresult.Fold,
			Now:      now,
		},
		bundles: engine.Handler[bundle.State]{
			Stream:   event.StreamBundle,
			Commands: registries.Commands,
			Events:   registries.Events,
			Store:    store,
			Decide:   bundle.Decide,
			Fold:     bundle.Fold,
			Now:      now,
		},
		policy:   policy,
		attempts: opts.RetryAttempts,
		keyring:  opts.Keyring,
		now:      now,
	}, nil
}

// Store returns the backing store.
func (s *Service) Store() storage.Store {
	return s.store
}

// loadContest returns the contest or a NOT_FOUND error.
func (s *Service) loadContest(ctx context.Context, contestID string) (contest.Contest, error) {
	contestID = strings.TrimSpace(contestID)
	if contestID == "" {
		return contest.Contest{}, apperrors.New(apperrors.CodeValidation, "contest id is required")
	}
	c, err := s.store.GetContest(ctx, contestID)
	if errors.Is(err, storage.ErrNotFound) {
		return contest.Contest{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("contest %s not found", contestID))
	}
	if err != nil {
		return contest.Contest{}, fmt.Errorf("load contest %s: %w", contestID, err)
	}
	return c, nil
}

// loadIndex returns the indexed snapshot of a contest. Contests without a
// snapshot have no reporting units yet.
func (s *Service) loadIndex(ctx context.Context, contestID string) (*hierarchy.Index, error) {
	snap, err := s.store.GetSnapshot(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot of %s: %w", contestID, err)
	}
	if snap.Empty() {
		return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("contest %s has no snapshot", contestID))
	}
	return hierarchy.NewIndex(snap), nil
}

// slot resolves and authorizes one (item, reporting unit) pair of an open
// contest.
type slot struct {
	contest contest.Contest
	index   *hierarchy.Index
	unit    hierarchy.SnapshotUnit
	item    hierarchy.Item
}

func (s *Service) resolveSlot(ctx context.Context, actor Actor, contestID, itemID, unitID string) (slot, error) {
	c, err := s.loadContest(ctx, contestID)
	if err != nil {
		return slot{}, err
	}
	if err := contest.CheckResults(c.State); err != nil {
		return slot{}, err
	}
	idx, err := s.loadIndex(ctx, c.ID)
	if err != nil {
		return slot{}, err
	}
	unit, ok := idx.Unit(unitID)
	if !ok || !unit.ReportingUnit {
		return slot{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("reporting unit %s is not part of contest %s", unitID, c.ID))
	}
	item, ok := idx.Item(unitID, itemID)
	if !ok {
		return slot{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("item %s is not tallied at unit %s", itemID, unitID))
	}
	if !hierarchy.BuildPermissions(idx.Snapshot()).CanSubmit(actor.TenantID, unit.ID) {
		return slot{}, apperrors.New(apperrors.CodePermissionDenied,
			fmt.Sprintf("tenant %q has no authority over unit %s", actor.TenantID, unit.ID))
	}
	return slot{contest: c, index: idx, unit: unit, item: item}, nil
}

// newCommand builds a command envelope for actor.
func newCommand(actor Actor, contestID, streamID string, t command.Type, payload any) (command.Command, error) {
	var payloadJSON []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return command.Command{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		payloadJSON = raw
	}
	requestID, err := id.NewID()
	if err != nil {
		return command.Command{}, fmt.Errorf("generate request id: %w", err)
	}
	return command.Command{
		ContestID:   contestID,
		Type:        t,
		StreamID:    streamID,
		ActorID:     actor.UserID,
		TenantID:    actor.TenantID,
		RequestID:   requestID,
		PayloadJSON: payloadJSON,
	}, nil
}

// executeResult runs a unit result command, re-reading the stream after
// concurrency conflicts.
func (s *Service) executeResult(ctx context.Context, cmd command.Command) (unitresult.State, error) {
	var state unitresult.State
	err := engine.Retry(ctx, s.attempts, func(ctx context.Context) error {
		result, err := s.results.Execute(ctx, cmd)
		state = result.State
		return err
	})
	return state, err
}

// executeBundle runs a bundle command, re-reading the stream after
// concurrency conflicts.
func (s *Service) executeBundle(ctx context.Context, cmd command.Command) (bundle.State, error) {
	var state bundle.State
	err := engine.Retry(ctx, s.attempts, func(ctx context.Context) error {
		result, err := s.bundles.Execute(ctx, cmd)
		state = result.State
		return err
	})
	return state, err
}
