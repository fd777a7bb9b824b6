// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

// Package validation wraps go-playground/validator v10 with a singleton
// instance, the custom tags the backup engine needs, and error messages that
// name fields by their configuration key rather than their Go field name.
//
// Custom tags:
//
//	clock    - "HH:MM" 24-hour wall-clock time (schedule.daily_time)
//	weekday  - lower-case English day name (schedule.weekly_day)
//	cronspec - standard 5-field cron expression (scheduled job patterns)
//
// Example:
//
//	type ScheduleConfig struct {
//	    DailyTime string `koanf:"daily_time" validate:"required,clock"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    return fmt.Errorf("invalid configuration: %w", err)
//	}
package validation
