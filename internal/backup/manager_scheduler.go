// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager_scheduler.go - Backup Scheduling

A single loop wakes on scheduler.tick_interval and:
  - runs every enabled job whose next_run has passed, with method=scheduled
  - sweeps expired backups (the reaper)

Jobs:
Patterns are standard 5-field cron expressions. On startup the loop seeds the
default jobs from the schedule anchors when they are absent:

	daily_full    M H * * *
	weekly_full   M H * * <weekly_day>
	monthly_full  M H <monthly_day> * *

An existing default job whose pattern no longer matches the anchors is
rewritten and rescheduled from now. Every other job keeps a stored next_run
that is a firing time of its pattern after last_run; anything else is
recomputed from last_run (or now when it never ran). Seeding and
recomputation are idempotent.

schedule.enabled is the master switch: while it is off no job is dispatched,
but the reaper still runs. Turning it back on reschedules every job from now.

Dispatch:
  - last_run = tick time, next_run = pattern.Next(tick time), written before
    the backup starts so a slow run is never fired twice
  - at most one run in flight per job name; a job still running when it is due
    again is skipped and its next_run advanced
  - jobs due in the same tick with the same backup type share one run
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/metrics"
	"github.com/tomtom215/talon/internal/validation"
)

// Default job names seeded from the schedule anchors.
const (
	JobDailyFull   = "daily_full"
	JobWeeklyFull  = "weekly_full"
	JobMonthlyFull = "monthly_full"

	schedulerUser = "scheduler"
)

// DefaultJobs returns the jobs seeded from cfg's schedule anchors.
func DefaultJobs(cfg *config.Config) []*ScheduledJob {
	hour, minute := cfg.DailyClock()
	return []*ScheduledJob{
		{
			JobName:         JobDailyFull,
			BackupType:      TypeFull,
			SchedulePattern: fmt.Sprintf("%d %d * * *", minute, hour),
			Enabled:         true,
		},
		{
			JobName:         JobWeeklyFull,
			BackupType:      TypeFull,
			SchedulePattern: fmt.Sprintf("%d %d * * %d", minute, hour, int(cfg.WeeklyWeekday())),
			Enabled:         true,
		},
		{
			JobName:         JobMonthlyFull,
			BackupType:      TypeFull,
			SchedulePattern: fmt.Sprintf("%d %d %d * *", minute, hour, cfg.Schedule.MonthlyDay),
			Enabled:         true,
		},
	}
}

// RunScheduler runs the scheduler loop until ctx is canceled or Stop or
// Close ends it; in the latter case it returns ErrSchedulerStopped. It is the
// entry point used under a supervisor; Start wraps the same loop for callers
// that manage the goroutine themselves.
func (m *Manager) RunScheduler(ctx context.Context) error {
	stop, err := m.beginScheduler()
	if err != nil {
		return err
	}
	defer m.endScheduler()

	m.runScheduler(ctx, stop)
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrSchedulerStopped
}

// runScheduler runs the scheduler loop until ctx is done or stop closes.
func (m *Manager) runScheduler(ctx context.Context, stop <-chan struct{}) {
	if err := m.PrepareJobs(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to prepare scheduled jobs")
	}

	interval := m.cfg.Get().Scheduler.TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info().Dur("tick_interval", interval).Msg("Backup scheduler started")
	defer logging.Info().Msg("Backup scheduler stopped")

	m.schedulerTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.schedulerTick(ctx)

			if d := m.cfg.Get().Scheduler.TickInterval; d != interval {
				interval = d
				ticker.Reset(interval)
				logging.Info().Dur("tick_interval", interval).Msg("Scheduler tick interval changed")
			}
		}
	}
}

// PrepareJobs seeds the default jobs when absent, realigns their patterns
// with the schedule anchors and recomputes next_run where it is stale.
// Running it again without intervening runs changes nothing.
func (m *Manager) PrepareJobs(ctx context.Context) error {
	cfg := m.cfg.Get()
	now := m.clock()

	rescheduled := make(map[string]bool)
	existing, err := m.store.ListJobs(ctx, false)
	if err != nil {
		return err
	}
	patterns := make(map[string]string, len(existing))
	for _, job := range existing {
		patterns[job.JobName] = job.SchedulePattern
	}

	for _, job := range DefaultJobs(&cfg) {
		current, ok := patterns[job.JobName]
		if !ok {
			if _, err := m.store.EnsureJob(ctx, job); err != nil {
				return err
			}
			logging.Info().
				Str("job", job.JobName).
				Str("pattern", job.SchedulePattern).
				Msg("Seeded scheduled job")
			continue
		}
		if current == job.SchedulePattern {
			continue
		}

		sched, err := cron.ParseStandard(job.SchedulePattern)
		if err != nil {
			return newError(KindConfiguration, "realign scheduled job", err)
		}
		if err := m.store.UpdateJobPattern(ctx, job.JobName, job.SchedulePattern, sched.Next(now)); err != nil {
			return err
		}
		rescheduled[job.JobName] = true
		logging.Info().
			Str("job", job.JobName).
			Str("old_pattern", current).
			Str("pattern", job.SchedulePattern).
			Msg("Schedule anchors changed; job pattern rewritten")
	}

	jobs, err := m.store.ListJobs(ctx, false)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if rescheduled[job.JobName] {
			continue
		}
		sched, err := cron.ParseStandard(job.SchedulePattern)
		if err != nil {
			logging.Warn().Err(err).Str("job", job.JobName).Msg("Invalid schedule pattern; job will not run")
			continue
		}
		if m.nextRunValid(sched, job) {
			continue
		}

		base := now
		if job.LastRun != nil {
			base = job.LastRun.In(m.loc)
		}
		if err := m.store.UpdateJobRun(ctx, job.JobName, nil, sched.Next(base)); err != nil {
			return err
		}
	}
	return nil
}

// nextRunValid reports whether the stored next_run is a firing time of sched
// that follows last_run.
func (m *Manager) nextRunValid(sched cron.Schedule, job *ScheduledJob) bool {
	if job.NextRun == nil {
		return false
	}
	next := job.NextRun.In(m.loc)
	if job.LastRun != nil && !next.After(*job.LastRun) {
		return false
	}
	return sched.Next(next.Add(-time.Second)).Equal(next)
}

// rescheduleFromNow sets next_run of every enabled job to its first firing
// after now, so re-enabling the scheduler does not replay missed runs.
func (m *Manager) rescheduleFromNow(ctx context.Context) error {
	jobs, err := m.store.ListJobs(ctx, true)
	if err != nil {
		return err
	}
	now := m.clock()
	for _, job := range jobs {
		sched, err := cron.ParseStandard(job.SchedulePattern)
		if err != nil {
			continue
		}
		if err := m.store.UpdateJobRun(ctx, job.JobName, nil, sched.Next(now)); err != nil {
			return err
		}
	}
	return nil
}

// schedulerTick runs due jobs and then the reaper. With schedule.enabled
// off only the reaper runs.
func (m *Manager) schedulerTick(ctx context.Context) {
	metrics.RecordSchedulerTick()
	if m.cfg.Get().Schedule.Enabled {
		m.dispatchDue(ctx)
	}
	m.CleanupExpired(ctx)
}

// dispatchDue starts every enabled job whose next_run has passed.
func (m *Manager) dispatchDue(ctx context.Context) {
	now := m.clock()

	jobs, err := m.store.ListJobs(ctx, true)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list scheduled jobs")
		return
	}

	batches := make(map[BackupType][]string)
	for _, job := range jobs {
		if job.NextRun == nil || job.NextRun.After(now) {
			continue
		}

		sched, err := cron.ParseStandard(job.SchedulePattern)
		if err != nil {
			logging.Warn().Err(err).Str("job", job.JobName).Msg("Invalid schedule pattern; job skipped")
			continue
		}
		next := sched.Next(now)

		if m.jobActive(job.JobName) {
			metrics.RecordScheduledRunSkipped(job.JobName)
			logging.Warn().Str("job", job.JobName).Time("next_run", next).Msg("Previous run still in flight; skipping")
			if err := m.store.UpdateJobRun(ctx, job.JobName, nil, next); err != nil {
				logging.Error().Err(err).Str("job", job.JobName).Msg("Failed to advance scheduled job")
			}
			continue
		}

		if err := m.store.UpdateJobRun(ctx, job.JobName, &now, next); err != nil {
			logging.Error().Err(err).Str("job", job.JobName).Msg("Failed to record scheduled run; job skipped")
			continue
		}
		batches[job.BackupType] = append(batches[job.BackupType], job.JobName)
	}

	types := make([]BackupType, 0, len(batches))
	for t := range batches {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, backupType := range types {
		m.dispatch(ctx, backupType, batches[backupType])
	}
}

// dispatch starts one scheduled backup on behalf of every job in names.
func (m *Manager) dispatch(ctx context.Context, backupType BackupType, names []string) {
	m.inflightMu.Lock()
	for _, name := range names {
		m.jobsActive[name] = true
	}
	m.inflightMu.Unlock()

	m.runsWg.Add(1)
	go func() {
		defer m.runsWg.Done()
		defer func() {
			m.inflightMu.Lock()
			for _, name := range names {
				delete(m.jobsActive, name)
			}
			m.inflightMu.Unlock()
		}()

		jobs := strings.Join(names, ",")
		result := m.CreateBackup(ctx, backupType, MethodScheduled, schedulerUser)
		if !result.Success {
			logging.Error().
				Str("jobs", jobs).
				Str("backup_id", result.BackupID).
				Str("error", result.Error).
				Msg("Scheduled backup failed")
			return
		}
		logging.Info().
			Str("jobs", jobs).
			Str("backup_id", result.BackupID).
			Msg("Scheduled backup completed")
	}()
}

func (m *Manager) jobActive(name string) bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	return m.jobsActive[name]
}

// WaitForScheduledRuns blocks until every dispatched scheduled backup has finished.
func (m *Manager) WaitForScheduledRuns() {
	m.runsWg.Wait()
}

// ListJobs returns every scheduled job.
func (m *Manager) ListJobs(ctx context.Context) ([]*ScheduledJob, error) {
	return m.store.ListJobs(ctx, false)
}

// SetJobEnabled enables or disables a job. Enabling recomputes next_run from now.
func (m *Manager) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	if err := m.store.SetJobEnabled(ctx, name, enabled); err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	jobs, err := m.store.ListJobs(ctx, false)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.JobName != name {
			continue
		}
		sched, err := cron.ParseStandard(job.SchedulePattern)
		if err != nil {
			return newError(KindValidation, "enable scheduled job", err)
		}
		return m.store.UpdateJobRun(ctx, name, nil, sched.Next(m.clock()))
	}
	return notFound("enable scheduled job", name)
}

// AddJob registers a custom scheduled job. The pattern must be a valid
// 5-field cron expression and the name must be new.
func (m *Manager) AddJob(ctx context.Context, job ScheduledJob) error {
	if err := validation.ValidateStruct(&job); err != nil {
		return newError(KindValidation, "add scheduled job", err)
	}
	if !job.BackupType.Valid() {
		return newError(KindValidation, "add scheduled job", fmt.Errorf("unknown backup type %q", job.BackupType))
	}

	sched, err := cron.ParseStandard(job.SchedulePattern)
	if err != nil {
		return newError(KindValidation, "add scheduled job", err)
	}
	next := sched.Next(m.clock())
	job.LastRun = nil
	job.NextRun = &next

	inserted, err := m.store.EnsureJob(ctx, &job)
	if err != nil {
		return err
	}
	if !inserted {
		return newError(KindValidation, "add scheduled job", fmt.Errorf("job %s already exists", job.JobName))
	}
	return nil
}

// RemoveJob deletes a scheduled job definition.
func (m *Manager) RemoveJob(ctx context.Context, name string) error {
	return m.store.DeleteJob(ctx, name)
}
