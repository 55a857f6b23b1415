package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage"
)

// CreateContest stores a new contest in the testing phase.
func (s *Service) CreateContest(ctx context.Context, c contest.Contest) (contest.Contest, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.RootUnitID = strings.TrimSpace(c.RootUnitID)
	if c.ID == "" || c.RootUnitID == "" {
		return contest.Contest{}, apperrors.New(apperrors.CodeValidation, "contest id and root unit are required")
	}
	if c.Date.IsZero() {
		return contest.Contest{}, apperrors.New(apperrors.CodeValidation, "contest date is required")
	}
	if _, err := s.store.GetContest(ctx, c.ID); err == nil {
		return contest.Contest{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("contest %s already exists", c.ID))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return contest.Contest{}, fmt.Errorf("check contest %s: %w", c.ID, err)
	}
	now := s.now().UTC()
	c.State = contest.StateTestingPhase
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.PutContest(ctx, c); err != nil {
		return contest.Contest{}, fmt.Errorf("put contest %s: %w", c.ID, err)
	}
	return c, nil
}

// TransitionContest moves a contest along its lifecycle.
func (s *Service) TransitionContest(ctx context.Context, contestID string, to contest.State) (contest.Contest, error) {
	c, err := s.loadContest(ctx, contestID)
	if err != nil {
		return contest.Contest{}, err
	}
	if err := contest.CheckTransition(c.State, to); err != nil {
		return contest.Contest{}, err
	}
	c.State = to
	c.UpdatedAt = s.now().UTC()
	if err := s.store.PutContest(ctx, c); err != nil {
		return contest.Contest{}, fmt.Errorf("put contest %s: %w", c.ID, err)
	}
	return c, nil
}

// Contest returns one contest.
func (s *Service) Contest(ctx context.Context, contestID string) (contest.Contest, error) {
	return s.loadContest(ctx, contestID)
}

// ListContests returns every contest.
func (s *Service) ListContests(ctx context.Context) ([]contest.Contest, error) {
	return s.store.ListContests(ctx)
}
