// Package scheduler wires up the cron job that periodically re-warms the
// cached funnel reports for every job with candidates, so dashboard reads
// stay fast between cache invalidations.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"talentflow/pipeline-service/internal/pipeline"
)

// Scheduler wraps robfig/cron and manages the refresh loop.
type Scheduler struct {
	cron *cron.Cron
	svc  *pipeline.Service
	spec string // cron spec, e.g. "@every 5m"
}

// New creates a Scheduler that fires every intervalMinutes minutes.
func New(svc *pipeline.Service, intervalMinutes int) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cron.DefaultLogger)),
		svc:  svc,
		spec: fmt.Sprintf("@every %dm", intervalMinutes),
	}
}

// Start registers the job and starts the scheduler. Also runs one refresh
// immediately so caches are warm without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runRefresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	// Warm caches immediately on startup (non-blocking)
	go s.runRefresh(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// runRefresh recomputes and caches the funnel report for every job.
func (s *Scheduler) runRefresh(ctx context.Context) {
	jobIDs, err := s.svc.JobIDs(ctx)
	if err != nil {
		log.Printf("[scheduler] JobIDs error: %v", err)
		return
	}

	if len(jobIDs) == 0 {
		log.Println("[scheduler] No jobs with candidates — nothing to refresh")
		return
	}

	log.Printf("[scheduler] Refreshing funnel reports for %d job(s)", len(jobIDs))
	for _, jobID := range jobIDs {
		if _, err := s.svc.RefreshFunnel(ctx, jobID); err != nil {
			log.Printf("[scheduler] Refresh error for job %s: %v", jobID, err)
		}
	}
}
