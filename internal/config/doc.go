// Package config provides 12-factor configuration management for the ET
// daemon.
//
// Configuration is loaded from environment variables with sensible
// defaults. A declarative station-topology file (see topology.go) can
// additionally seed the initial station ring at startup — this is the
// in-scope half of the "process-startup configuration parsing"
// collaborator; allocating the underlying event pool itself remains an
// external concern per spec.md's Out-of-scope list.
//
// Configuration Sections:
//   - Server: raw-TCP protocol listener settings
//   - Event: free-pool size/shape and registry limits
//   - Logging: log level and output format
//   - RateLimit: per-listener connection-accept rate limiting
//   - Admin: the admin/observability HTTP surface
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("ET listening on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
