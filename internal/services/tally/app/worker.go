package app

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
)

const (
	defaultRollupInterval    = 30 * time.Second
	defaultRollupConcurrency = 4
)

// RollupWorker keeps contest totals current by rebuilding every contest
// whose event head moved past its last rollup.
type RollupWorker struct {
	service     *Service
	interval    time.Duration
	concurrency int
}

// NewRollupWorker builds a worker. Non-positive settings take defaults.
func NewRollupWorker(service *Service, interval time.Duration, concurrency int) *RollupWorker {
	if interval <= 0 {
		interval = defaultRollupInterval
	}
	if concurrency <= 0 {
		concurrency = defaultRollupConcurrency
	}
	return &RollupWorker{service: service, interval: interval, concurrency: concurrency}
}

// Run rebuilds stale contests every interval until ctx ends.
func (w *RollupWorker) Run(ctx context.Context) error {
	if w == nil || w.service == nil {
		return errors.New("rollup worker requires a service")
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("rollup pass: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce rebuilds every stale contest with a snapshot and returns the
// reports of those it rebuilt. A failing contest does not stop the others.
func (w *RollupWorker) RunOnce(ctx context.Context) ([]RollupReport, error) {
	contests, err := w.service.ListContests(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]RollupReport, len(contests))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.concurrency)
	for i, c := range contests {
		if c.State == contest.StateArchived {
			continue
		}
		group.Go(func() error {
			status, err := w.service.RollupStatus(groupCtx, c.ID)
			if err != nil || status.Current {
				return err
			}
			report, err := w.service.RebuildRollups(groupCtx, c.ID)
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				return nil
			}
			if err != nil {
				log.Printf("rollup of %s: %v", c.ID, err)
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	out := reports[:0]
	for _, report := range reports {
		if report.ContestID != "" && !report.Skipped {
			out = append(out, report)
		}
	}
	return out, nil
}
