// Package scheduler runs named periodic jobs on a single cooperative tick
// loop, generalizing the teacher's single-purpose retry-worker ticker into a
// registered {name, period, fn} table: each tick computes which jobs are
// due and runs them sequentially, each isolated by its own recover
// boundary so one job's failure never skips the others.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/tradecore/pkg/logging"
)

// tickInterval is the scheduler's default polling granularity. run polls at
// the shortest period among the jobs registered before Start when that is
// shorter; jobs registered after Start do not change it.
const tickInterval = time.Second

// JobFunc is the work a registered job performs on each due run.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	period  time.Duration
	fn      JobFunc
	nextRun time.Time
}

// Scheduler runs registered jobs on their own periods from a single
// goroutine, the way the teacher's RetryWorker multiplexed a retry ticker
// and a cleanup ticker in one run loop, generalized to any number of jobs.
type Scheduler struct {
	log *logging.Logger

	mu   sync.Mutex
	jobs []*job

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an empty Scheduler.
func New(log *logging.Logger) *Scheduler {
	return &Scheduler{log: log.Component("scheduler")}
}

// Register adds a job that first runs one period from now.
func (s *Scheduler) Register(name string, period time.Duration, fn JobFunc) {
	s.RegisterAt(name, period, time.Now().Add(period), fn)
}

// RegisterAt adds a job with an explicit first run time, for jobs anchored
// to a wall-clock boundary (e.g. daily at UTC midnight) rather than offset
// from process start.
func (s *Scheduler) RegisterAt(name string, period time.Duration, firstRun time.Time, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, period: period, fn: fn, nextRun: firstRun})
}

// Start runs the scheduler loop in a background goroutine until ctx is
// canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
	s.log.Info("scheduler started", "jobs", s.jobCount())
}

// Stop cancels the scheduler loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	interval := tickInterval
	s.mu.Lock()
	for _, j := range s.jobs {
		if j.period > 0 && j.period < interval {
			interval = j.period
		}
	}
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDueJobs(ctx)
		}
	}
}

func (s *Scheduler) runDueJobs(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
			j.nextRun = now.Add(j.period)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.runJob(ctx, j)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler job panicked", "job", j.name, "panic", fmt.Sprint(r))
		}
	}()
	if err := j.fn(ctx); err != nil {
		s.log.Warn("scheduler job failed", "job", j.name, "error", err)
	}
}

// NextUTCMidnight returns the next UTC midnight strictly after now, for
// anchoring daily jobs to a wall-clock boundary.
func NextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	if !midnight.After(u) {
		midnight = midnight.Add(24 * time.Hour)
	}
	return midnight
}
