// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package config

import (
	"time"

	"github.com/tomtom215/talon/internal/validation"
)

// DefaultPath is where the binary looks for the document when --config is not given.
const DefaultPath = "/etc/talon/backup.yaml"

// Config is a snapshot of the configuration document.
type Config struct {
	BackupRoot string `koanf:"backup_root" validate:"required"`
	DumpPath   string `koanf:"dump_path" validate:"required"`
	LoadPath   string `koanf:"load_path" validate:"required"`

	DBHost     string `koanf:"db_host" validate:"required"`
	DBPort     int    `koanf:"db_port" validate:"gte=1,lte=65535"`
	DBName     string `koanf:"db_name" validate:"required"`
	DBUser     string `koanf:"db_user" validate:"required"`
	DBPassword string `koanf:"db_password"`

	RetentionPolicy RetentionPolicyConfig `koanf:"retention_policy"`
	Schedule        ScheduleConfig        `koanf:"schedule"`
	Compression     CompressionConfig     `koanf:"compression"`
	Encryption      EncryptionConfig      `koanf:"encryption"`

	Logging   LoggingConfig   `koanf:"logging"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	HTTP      HTTPConfig      `koanf:"http"`
}

// RetentionPolicyConfig holds the per-tier counts used by the retention classifier.
type RetentionPolicyConfig struct {
	Daily   int `koanf:"daily" json:"daily" validate:"gte=0"`
	Weekly  int `koanf:"weekly" json:"weekly" validate:"gte=0"`
	Monthly int `koanf:"monthly" json:"monthly" validate:"gte=0"`
	Yearly  int `koanf:"yearly" json:"yearly" validate:"gte=0"`
}

// ScheduleConfig holds the calendar anchors for the default scheduled jobs.
type ScheduleConfig struct {
	Enabled    bool   `koanf:"enabled"`
	DailyTime  string `koanf:"daily_time" validate:"required,clock"`
	WeeklyDay  string `koanf:"weekly_day" validate:"required,weekday"`
	MonthlyDay int    `koanf:"monthly_day" validate:"gte=1,lte=28"`
}

// CompressionConfig controls the deflate stage of the artifact pipeline.
type CompressionConfig struct {
	Enabled bool `koanf:"enabled"`
	Level   int  `koanf:"level" validate:"gte=1,lte=9"`
}

// EncryptionConfig is reserved. The engine reads and re-emits it but never acts on it.
type EncryptionConfig struct {
	Enabled bool   `koanf:"enabled"`
	KeyFile string `koanf:"key_file"`
}

// LoggingConfig is handed to logging.Init by the binary.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// SchedulerConfig tunes the scheduler loop.
type SchedulerConfig struct {
	TickInterval time.Duration `koanf:"tick_interval" validate:"gte=1s"`
}

// HTTPConfig is the operator endpoint used by `talon-backup serve`.
type HTTPConfig struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

// DefaultConfig returns the built-in defaults the document is merged over.
func DefaultConfig() Config {
	return Config{
		BackupRoot: "/var/lib/talon/backups",
		DumpPath:   "/usr/bin/pg_dump",
		LoadPath:   "/usr/bin/psql",
		DBHost:     "localhost",
		DBPort:     5432,
		DBName:     "talon",
		DBUser:     "talon",
		RetentionPolicy: RetentionPolicyConfig{
			Daily:   7,
			Weekly:  4,
			Monthly: 1,
			Yearly:  1,
		},
		Schedule: ScheduleConfig{
			Enabled:    true,
			DailyTime:  "02:00",
			WeeklyDay:  "sunday",
			MonthlyDay: 1,
		},
		Compression: CompressionConfig{Enabled: true, Level: 6},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
		Scheduler:   SchedulerConfig{TickInterval: 60 * time.Second},
		HTTP:        HTTPConfig{ListenAddr: "127.0.0.1:9187"},
	}
}

// Validate checks every rule in the struct tags.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c)
}

// DailyClock returns the hour and minute of schedule.daily_time.
// Validate guarantees the format; a malformed value yields 0, 0.
func (c *Config) DailyClock() (hour, minute int) {
	t, err := time.Parse("15:04", c.Schedule.DailyTime)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

// WeeklyWeekday returns schedule.weekly_day as a time.Weekday (Sunday if unknown).
func (c *Config) WeeklyWeekday() time.Weekday {
	return validation.Weekdays[c.Schedule.WeeklyDay]
}

// Redacted returns a copy that is safe to print.
//
//nolint:gocritic // value receiver returns a modified copy
func (c Config) Redacted() Config {
	if c.DBPassword != "" {
		c.DBPassword = "[REDACTED]"
	}
	return c
}
