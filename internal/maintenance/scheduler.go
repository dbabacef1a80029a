// Package maintenance provides an optional background scheduler that
// invokes a device's garbage collector on a cron expression, for hosts
// that want proactive reclamation instead of reclaim-on-demand. It calls
// the same serialized entry point a host could call directly; nothing
// here changes the single-writer contract of the core.
package maintenance

import (
	"log"

	"github.com/robfig/cron/v3"
)

// GCRunner is the subset of Device the scheduler needs.
type GCRunner interface {
	RunGC() error
}

// RunnerFunc adapts a plain function to GCRunner, the way
// http.HandlerFunc adapts a function to http.Handler — useful when the
// caller's RunGC also returns a result value the scheduler doesn't need.
type RunnerFunc func() error

// RunGC implements GCRunner.
func (f RunnerFunc) RunGC() error { return f() }

// Scheduler runs RunGC on a cron expression until Stop is called.
type Scheduler struct {
	cron   *cron.Cron
	runner GCRunner
	logger *log.Logger
}

// New builds a Scheduler that invokes runner.RunGC() on the given cron
// expression (standard five-field syntax, e.g. "*/5 * * * *").
func New(expr string, runner GCRunner, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{cron: cron.New(), runner: runner, logger: logger}
	if _, err := s.cron.AddFunc(expr, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	if err := s.runner.RunGC(); err != nil {
		s.logger.Printf("maintenance: scheduled gc: %v", err)
	}
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
