// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
retention.go - Retention Classifier

Classify maps (backup type, method, creation time) to a retention tier and an
expiry. It is a pure function of its inputs and the policy counts:

	manual                          -> monthly, t + 30*monthly days
	scheduled full, first Sunday    -> monthly, t + 30*monthly days
	  ... and the month is January  -> yearly candidate, t + 365*yearly days
	scheduled full, other Sunday    -> weekly,  t + 7*weekly days
	scheduled full, other days      -> daily,   t + daily days
	scheduled, not full             -> daily,   t + daily days

When a backup qualifies for several tiers the one with the latest expiry wins;
equal expiries go to the higher tier.

Day arithmetic is calendar arithmetic in t's location, so an expiry keeps the
wall-clock hour of its backup across DST changes.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"time"

	"github.com/tomtom215/talon/internal/config"
)

type retentionCandidate struct {
	category RetentionCategory
	expiry   time.Time
}

// Classify returns the retention category and expiry for a backup created at t.
func Classify(policy config.RetentionPolicyConfig, backupType BackupType, method Method, t time.Time) (RetentionCategory, time.Time) {
	candidates := retentionCandidates(policy, backupType, method, t)

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.expiry.After(best.expiry) ||
			(c.expiry.Equal(best.expiry) && c.category.rank() > best.category.rank()) {
			best = c
		}
	}
	return best.category, best.expiry
}

func retentionCandidates(policy config.RetentionPolicyConfig, backupType BackupType, method Method, t time.Time) []retentionCandidate {
	daily := retentionCandidate{RetentionDaily, t.AddDate(0, 0, policy.Daily)}
	weekly := retentionCandidate{RetentionWeekly, t.AddDate(0, 0, 7*policy.Weekly)}
	monthly := retentionCandidate{RetentionMonthly, t.AddDate(0, 0, 30*policy.Monthly)}
	yearly := retentionCandidate{RetentionYearly, t.AddDate(0, 0, 365*policy.Yearly)}

	if method == MethodManual {
		return []retentionCandidate{monthly}
	}
	if backupType != TypeFull || t.Weekday() != time.Sunday {
		return []retentionCandidate{daily}
	}
	if t.Day() > 7 {
		return []retentionCandidate{weekly}
	}
	if t.Month() == time.January {
		return []retentionCandidate{weekly, monthly, yearly}
	}
	return []retentionCandidate{weekly, monthly}
}
