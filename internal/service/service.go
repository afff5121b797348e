// Package service is the run orchestrator: it decides when a pipeline run
// happens (manual trigger, daily cron, startup catch-up) and guarantees at
// most one run executes at a time.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sugarwatch/internal/alerting"
	"sugarwatch/internal/etl"
	"sugarwatch/internal/scheduler"
	"sugarwatch/internal/storage"
)

// ErrRunInProgress rejects a trigger received while a run is executing.
// Triggers are rejected, never queued.
var ErrRunInProgress = errors.New("pipeline run already in progress")

const jobName = "daily_etl"

// Runner executes one full pipeline pass.
type Runner interface {
	Run(ctx context.Context) (etl.RunResult, error)
}

// ScheduleStatus is the read-only introspection of the scheduled job.
type ScheduleStatus struct {
	Running     bool       `json:"running"`
	NextRunTime *time.Time `json:"next_run_time"`
}

// Options tune orchestration behaviour.
type Options struct {
	CronSpec        string
	Location        *time.Location
	CatchupOnStart  bool
	AdvisoryLockKey int64
}

// Service owns the run lifecycle around the pipeline.
type Service struct {
	pipeline Runner
	sched    *scheduler.Scheduler
	store    storage.DailyWriter
	locker   storage.AdvisoryLocker
	notifier alerting.Notifier
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	runMu   sync.Mutex
	running atomic.Bool
}

// New constructs the orchestrator. The notifier and locker may be nil.
func New(pipeline Runner, sched *scheduler.Scheduler, store storage.DailyWriter, locker storage.AdvisoryLocker, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		pipeline: pipeline,
		sched:    sched,
		store:    store,
		locker:   locker,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
	}
}

// Start performs the startup catch-up, registers the daily job, and starts
// the cron loop. The context outlives Start and backs scheduled runs.
func (s *Service) Start(ctx context.Context) error {
	if s.opts.CatchupOnStart {
		s.catchUp(ctx)
	}

	if err := s.sched.Register(jobName, s.opts.CronSpec, func() {
		s.runScheduled(ctx)
	}); err != nil {
		return err
	}

	s.sched.Start()
	if next := s.sched.NextRun(jobName); next != nil {
		s.logger.Info().Time("next_run", *next).Msg("daily etl scheduled")
	}
	return nil
}

// Stop halts the scheduler.
func (s *Service) Stop() {
	s.sched.Stop()
}

// RunOnce executes one synchronous pipeline run. A concurrent trigger gets
// ErrRunInProgress; the run outcome itself is encoded in the RunResult.
func (s *Service) RunOnce(ctx context.Context) (etl.RunResult, error) {
	if !s.runMu.TryLock() {
		return etl.RunResult{Status: etl.StatusError, Detail: ErrRunInProgress.Error()}, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	if s.locker != nil && s.opts.AdvisoryLockKey != 0 {
		unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
		if err != nil {
			s.logger.Error().Err(err).Msg("advisory lock acquisition failed")
			return etl.RunResult{Status: etl.StatusError, Detail: err.Error()}, err
		}
		if !acquired {
			return etl.RunResult{Status: etl.StatusError, Detail: ErrRunInProgress.Error()}, ErrRunInProgress
		}
		defer unlock()
	}

	result, _ := s.pipeline.Run(ctx)
	return result, nil
}

// Status reports whether a run is in flight and when the next scheduled run
// fires. Read-only, no side effects.
func (s *Service) Status() ScheduleStatus {
	return ScheduleStatus{
		Running:     s.running.Load(),
		NextRunTime: s.sched.NextRun(jobName),
	}
}

// catchUp triggers an immediate run when the most recent persisted trading
// date is missing or older than the current calendar date. A restart that
// missed the scheduled window must not keep serving stale data.
func (s *Service) catchUp(ctx context.Context) {
	latest, err := s.store.LatestRecordDate(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("startup check failed")
		return
	}

	now := s.now().In(s.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if latest != nil && !latest.Before(today) {
		s.logger.Info().Time("latest", *latest).Msg("data up to date, startup run skipped")
		return
	}

	if latest == nil {
		s.logger.Warn().Msg("no persisted records, running startup etl")
	} else {
		s.logger.Warn().Time("latest", *latest).Msg("stale records, running startup etl")
	}

	result, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("startup etl rejected")
		return
	}
	s.logRunOutcome("startup", result)
}

// runScheduled executes the cron-fired run. A failed scheduled run is logged
// (and optionally notified) and waits for the next scheduled time; it never
// crashes the host process.
func (s *Service) runScheduled(ctx context.Context) {
	firedAt := s.now()
	result, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scheduled run rejected")
		return
	}

	s.logRunOutcome("scheduled", result)

	if result.Status == etl.StatusError && s.notifier != nil {
		note := alerting.Notification{
			Trigger:    "scheduled",
			FiredAt:    firedAt,
			Status:     result.Status,
			Detail:     result.Detail,
			DegradedFX: result.DegradedFX,
		}
		if notifyErr := s.notifier.Notify(ctx, note); notifyErr != nil {
			s.logger.Error().Err(notifyErr).Msg("failed to dispatch run alert")
		}
	}
}

func (s *Service) logRunOutcome(trigger string, result etl.RunResult) {
	event := s.logger.Info()
	if result.Status == etl.StatusError {
		event = s.logger.Error()
	}
	event.
		Str("trigger", trigger).
		Str("status", result.Status).
		Int("new", result.NewCount).
		Int("updated", result.UpdatedCount).
		Bool("degraded_fx", result.DegradedFX).
		Str("detail", result.Detail).
		Msg("etl run finished")
}
