package infra

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler re-runs bootstrap on a cron schedule so resources removed while
// the service runs are recreated. It also remembers the latest report.
type Scheduler struct {
	cron *cron.Cron
	boot *Bootstrapper

	mu   sync.RWMutex
	last Report
}

// NewScheduler returns a stopped scheduler seeded with the startup report.
func NewScheduler(boot *Bootstrapper, initial Report) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		boot: boot,
		last: initial,
	}
}

// Schedule registers a re-bootstrap job. The spec accepts descriptors such as
// "@every 5m" and six-field expressions with seconds.
func (s *Scheduler) Schedule(spec string, timeout time.Duration) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.RunNow(ctx)
	})
}

// RunNow runs bootstrap immediately and stores the report.
func (s *Scheduler) RunNow(ctx context.Context) Report {
	report := s.boot.Run(ctx)
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	if !report.OK() {
		s.boot.log.Warn().Int("failed", len(report.Failed())).Interface("steps", report.Summary()).Msg("Re-bootstrap incomplete")
	}
	return report
}

// Last returns the most recent report.
func (s *Scheduler) Last() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
