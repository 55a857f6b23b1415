package app

import (
	"context"
	"fmt"
	"log"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
)

// PurgeContest deletes an archived contest with its results, bundles,
// snapshot and totals.
func (s *Service) PurgeContest(ctx context.Context, contestID string) error {
	c, err := s.loadContest(ctx, contestID)
	if err != nil {
		return err
	}
	if err := contest.CheckPurge(c.State); err != nil {
		return err
	}
	if err := s.store.DeleteRollups(ctx, c.ID); err != nil {
		return fmt.Errorf("purge rollups of %s: %w", c.ID, err)
	}
	if err := s.store.DeleteContestEvents(ctx, c.ID); err != nil {
		return fmt.Errorf("purge events of %s: %w", c.ID, err)
	}
	if err := s.store.DeleteSnapshot(ctx, c.ID); err != nil {
		return fmt.Errorf("purge snapshot of %s: %w", c.ID, err)
	}
	if err := s.store.DeleteContest(ctx, c.ID); err != nil {
		return fmt.Errorf("purge contest %s: %w", c.ID, err)
	}
	log.Printf("contest %s purged", c.ID)
	return nil
}
