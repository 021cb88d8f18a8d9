// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/adelansari/tk2-track-namer/internal/store"
)

// Reconciler recomputes vote counters from the ledger.
type Reconciler interface {
	ReconcileVotes(ctx context.Context, kind store.Kind) (map[store.Kind]int64, error)
}

type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
}

// NewScheduler validates schedule up front. An empty schedule yields a
// scheduler whose Start is a no-op.
func NewScheduler(reconciler Reconciler, schedule string) (*Scheduler, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("parse reconcile schedule %q: %w", schedule, err)
		}
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    5 * time.Minute,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		log.Info("[CRON] vote reconciliation disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reconciliation: %w", err)
	}
	s.cron.Start()
	log.WithField("schedule", s.schedule).Info("[CRON] vote reconciliation scheduled")
	return nil
}

// RunOnce reconciles both collections and logs the corrections.
func (s *Scheduler) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	fixed, err := s.reconciler.ReconcileVotes(runCtx, store.KindAll)
	if err != nil {
		log.WithError(err).Error("[CRON] vote reconciliation failed")
		return
	}
	log.WithFields(log.Fields{
		"track_fixed": fixed[store.KindTrack],
		"arena_fixed": fixed[store.KindArena],
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("[CRON] vote counts reconciled")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("[CRON] scheduler stopped")
}
