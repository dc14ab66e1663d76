package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/metrics"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/leaselock"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"
)

// Locker serializes a sweep across worker replicas.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// RunRecorder keeps the duration history of sweeps.
type RunRecorder interface {
	Predict(ctx context.Context, sweep string) (time.Duration, error)
	Record(ctx context.Context, sweep string, items int, d time.Duration) error
}

type Job struct {
	Name     string
	LeaseKey string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

type Scheduler struct {
	locker   Locker
	recorder RunRecorder
	jobs     []Job
	now      func() time.Time
}

type NewSchedulerParams struct {
	Locker   Locker
	Recorder RunRecorder
	Jobs     []Job
	Now      func() time.Time
}

func NewScheduler(params NewSchedulerParams) *Scheduler {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		locker:   params.Locker,
		recorder: params.Recorder,
		jobs:     params.Jobs,
		now:      now,
	}
}

// Start runs every job once, then on its interval, until ctx is done. It
// blocks until all job loops have exited.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			logger.Warn("[Jobs] Job has no interval, not scheduling", "job", job.Name)
			continue
		}
		wg.Go(func() {
			s.loop(ctx, job)
		})
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	t := time.NewTicker(job.Interval)
	defer t.Stop()

	for {
		_ = s.RunOnce(ctx, job)
		select {
		case <-ctx.Done():
			logger.Info("[Jobs] Stopping job", "job", job.Name)
			return
		case <-t.C:
		}
	}
}

// RunOnce runs one job under its lease. A lease held elsewhere is not an
// error: another replica is already running the sweep.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	run := func(ctx context.Context) error {
		if s.recorder != nil {
			if expected, err := s.recorder.Predict(ctx, job.Name); err == nil && expected > 0 {
				logger.Debug("[Jobs] Expected sweep duration", "job", job.Name, "expected", expected.String())
			}
		}

		start := s.now()
		items, err := job.Run(ctx)
		elapsed := s.now().Sub(start)
		metrics.SweepFinished(job.Name, items, elapsed, err)
		if err != nil {
			return err
		}

		logger.Info("[Jobs] Sweep finished", "job", job.Name, "items", items, "duration", elapsed.String())
		if s.recorder != nil {
			if err := s.recorder.Record(ctx, job.Name, items, elapsed); err != nil {
				logger.Warn("[Jobs] Failed to record sweep run", "job", job.Name, "err", err)
			}
		}
		return nil
	}

	var err error
	if s.locker != nil && job.LeaseKey != "" {
		err = s.locker.WithLease(ctx, job.LeaseKey, run)
	} else {
		err = run(ctx)
	}

	switch {
	case err == nil:
	case errors.Is(err, leaselock.ErrBusy):
		logger.Debug("[Jobs] Sweep already running elsewhere", "job", job.Name)
		return nil
	case ctx.Err() != nil:
		logger.Info("[Jobs] Sweep interrupted", "job", job.Name, "err", err)
	default:
		logger.Error("[Jobs] Sweep failed", "job", job.Name, "err", err)
	}
	return err
}
