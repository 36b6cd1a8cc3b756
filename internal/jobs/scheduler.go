// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the registration sweep daily at 01:00.
const DefaultSweepSchedule = "0 1 * * *"

// Sweeper removes stale registrations.
type Sweeper interface {
	SweepStaleRegistrations(ctx context.Context) (int, error)
}

// Scheduler owns a cron runner. Jobs never overlap with themselves and a
// panicking job is recovered and logged.
type Scheduler struct {
	cron    *cron.Cron
	logger  log.Logger
	timeout time.Duration
}

// NewScheduler returns a stopped scheduler. timeout bounds each job run.
func NewScheduler(logger log.Logger, timeout time.Duration, loc *time.Location) *Scheduler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: log.With(logger, "component", "cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
	}
}

// AddSweep schedules s at spec, a standard five-field cron expression.
func (s *Scheduler) AddSweep(spec string, sw Sweeper) error {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		n, err := sw.SweepStaleRegistrations(ctx)
		if err != nil {
			level.Error(s.logger).Log("msg", "stale registration sweep failed", "deleted", n, "err", err)
			return
		}
		level.Info(s.logger).Log("msg", "stale registration sweep finished", "deleted", n, "took", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts go-kit logging to cron.Logger.
type cronLogger struct {
	logger log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	level.Debug(l.logger).Log(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	level.Error(l.logger).Log(append([]interface{}{"msg", msg, "err", err}, keysAndValues...)...)
}
