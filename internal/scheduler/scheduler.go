// Package scheduler wraps robfig/cron with named, replaceable jobs so a
// restart re-registers the daily trigger instead of duplicating it.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler drives wall-clock scheduled jobs in a fixed time zone.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New constructs a Scheduler anchored to the given location.
func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		entries: make(map[string]cron.EntryID),
	}
}

// Register installs a named job. Registering the same name again replaces the
// prior entry.
func (s *Scheduler) Register(name, spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.entries[name] = id

	s.logger.Info().Str("job", name).Str("spec", spec).Msg("job registered")
	return nil
}

// NextRun reports the next fire time of a named job, or nil when the job is
// unknown or the scheduler has not started.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	entry := s.cron.Entry(id)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop halts scheduling and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}
