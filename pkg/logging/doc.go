// Package logging provides a structured logging system for agenthook with
// subsystem-tagged messages on top of Go's standard slog package.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Webhook", "Listening on %s", addr)
//	logging.Debug("Tunnel", "Discovered public URL %s", url)
//	logging.Warn("Webhook", "No handler registered for %s", kind)
//	logging.Error("Agent", err, "Call to %s failed", agentID)
//
// # Subsystems
//
//   - Webhook: signature checks, correlation and handler dispatch
//   - Callback: the local callback listener
//   - Tunnel: the external tunnel process
//   - Agent: protocol transports and the operation executor
//   - Config: configuration loading and validation
//   - CLI: command execution
//
// # One-time warnings
//
// OnceSet is an explicit dedup set for warnings that should be reported once
// per key (for example a task kind with no registered handler). Components
// receive their own OnceSet instead of sharing a package-level one.
package logging
