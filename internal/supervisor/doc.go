// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
Package supervisor runs the backup daemon's long-lived services under suture v4.

	RootSupervisor ("talon")
	├── EngineSupervisor ("engine-layer")
	│   └── SchedulerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed service is restarted with backoff. Supervisor events are logged
through sutureslog, so the caller passes an slog.Logger; the daemon bridges
it to zerolog with logging.NewSlogLogger.

Startup reconciliation is not a service: it runs once, before the tree.
*/
package supervisor
