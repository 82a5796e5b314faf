// Package scheduler publishes batch jobs on their cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/OFFIS-RIT/macrokg/internal/queue"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// Enqueuer puts a job on the queue.
type Enqueuer func(ctx context.Context, msg queue.JobMsg) error

// cronLogger routes cron's own messages to the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("[Scheduler] "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("[Scheduler] "+msg, append(keysAndValues, "err", err)...)
}

type Scheduler struct {
	cron    *cron.Cron
	enqueue Enqueuer
	now     func() time.Time
	entries map[string]cron.EntryID
}

// New registers one entry per non-empty spec. Unknown jobs and invalid
// specs are rejected.
func New(specs map[string]string, enqueue Enqueuer) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
			cron.WithLogger(cronLogger{}),
		),
		enqueue: enqueue,
		now:     time.Now,
		entries: map[string]cron.EntryID{},
	}

	jobs := make([]string, 0, len(specs))
	for job := range specs {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	for _, job := range jobs {
		spec := specs[job]
		if spec == "" {
			continue
		}
		if err := (queue.JobMsg{Job: job}).Validate(); err != nil {
			return nil, err
		}
		id, err := s.cron.AddFunc(spec, s.trigger(job))
		if err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", job, spec, err)
		}
		s.entries[job] = id
	}
	return s, nil
}

func (s *Scheduler) trigger(job string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		msg := queue.JobMsg{Job: job, RequestedAt: s.now().UTC()}
		if err := s.enqueue(ctx, msg); err != nil {
			logger.Error("[Scheduler] Failed to enqueue job", "job", job, "err", err)
			return
		}
		logger.Info("[Scheduler] Job enqueued", "job", job)
	}
}

// Jobs returns the scheduled jobs in name order.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.entries))
	for job := range s.entries {
		out = append(out, job)
	}
	sort.Strings(out)
	return out
}

// Next is the next run time of job.
func (s *Scheduler) Next(job string) (time.Time, bool) {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Trigger enqueues job right away.
func (s *Scheduler) Trigger(job string) bool {
	if _, ok := s.entries[job]; !ok {
		return false
	}
	s.trigger(job)()
	return true
}

// Run starts the scheduler and blocks until ctx is done. Running triggers
// are waited for.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	logger.Info("[Scheduler] Started", "jobs", s.Jobs())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	logger.Info("[Scheduler] Stopped")
}
