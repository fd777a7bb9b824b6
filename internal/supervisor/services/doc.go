// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
Package services adapts daemon components to suture.Service.

  - SchedulerService wraps backup.Manager.RunScheduler (blocking loop)
  - HTTPServerService wraps *http.Server (ListenAndServe / Shutdown)

Return values drive the supervisor:

	ctx.Err()   shutdown requested, normal termination
	error       crashed, restart with backoff
	nil         stopped cleanly, not restarted

Each wrapper implements fmt.Stringer; suture logs the name with every event.
*/
package services
