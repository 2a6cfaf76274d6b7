/*
Package log provides structured logging for all Zoe components.

Built on zerolog, it exposes a process-global logger configured once at
startup. Components derive a child logger tagged with their subsystem
name and attach per-event fields themselves:

	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true})

	logger := log.WithComponent("scheduler")
	logger.Info().Int("execution_id", e.ID).Msg("execution started")

Console (human-readable) output is the default; JSON output is meant for
production deployments where logs are shipped to an aggregator.
*/
package log
