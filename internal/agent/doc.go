// Package agent calls remote agents and drives each call to a final result.
//
// A Transport speaks one wire protocol: MCP tool calls over streamable HTTP
// or A2A JSON-RPC message/send. Both carry the webhook URL and secret the
// agent should use to report back asynchronously.
//
// The Executor owns the lifecycle of one operation:
//
//  1. pick an operation id and arrange for callbacks, either by starting a
//     one-shot listener (optionally behind a tunnel) or by registering with
//     a shared Correlator;
//  2. call the agent;
//  3. return terminal results immediately, run the OAuth flow once on
//     auth-required, ask the InputHandler on input-required and otherwise
//     wait for the webhook until the deadline.
package agent
