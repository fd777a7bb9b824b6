// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/talon/internal/backup"
)

// Scheduler is the blocking scheduler loop of backup.Manager.
type Scheduler interface {
	RunScheduler(ctx context.Context) error
}

// SchedulerService runs the backup scheduler under supervision.
//
// RunScheduler blocks until its context is canceled. When the manager is
// stopped or closed underneath it the service asks not to be restarted. Any
// other return is a failure and the supervisor restarts the loop; job state
// lives in the metadata store, so a restarted loop picks up the persisted
// next_run values.
type SchedulerService struct {
	scheduler Scheduler
	name      string
}

// NewSchedulerService wraps scheduler.
func NewSchedulerService(scheduler Scheduler) *SchedulerService {
	return &SchedulerService{
		scheduler: scheduler,
		name:      "backup-scheduler",
	}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	err := s.scheduler.RunScheduler(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, backup.ErrSchedulerStopped) {
		return suture.ErrDoNotRestart
	}
	if err == nil {
		err = errors.New("returned before shutdown")
	}
	return fmt.Errorf("backup scheduler: %w", err)
}

// String names the service in supervisor events.
func (s *SchedulerService) String() string {
	return s.name
}
