// Package main is the entry point for etd, the Event Transport daemon.
//
// etd hosts one System registry, one conductor goroutine per
// non-GRAND_CENTRAL station, the raw-TCP protocol server clients speak
// (spec.md §6.1), and a read-only admin/observability HTTP surface.
//
// Configuration:
//   - Environment variables (12-factor, see internal/config)
//   - An optional declarative station-topology file (internal/config
//     topology.go) to seed the initial ring at startup
//
// Usage:
//
//	# Production mode
//	ET_PORT=11111 ./etd
//
//	# Development mode (colored logs, debug level)
//	LOG_DEV=true LOG_LEVEL=debug ./etd
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, draining conductors and
//     restoring any attachment-held events before exit.
package main
