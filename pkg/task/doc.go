// Package task provides the task-status enumeration and task-kind names
// shared by the agent transports, the webhook correlator and the CLI.
//
// Both wire protocols (MCP and A2A) report progress with the same set of
// statuses; this package normalizes the spellings they use.
package task
