// Package oauth runs the interactive authorization flow for remote agents
// that require OAuth.
//
// # Flow
//
// A Coordinator owns the credentials of one agent. When a call needs a token
// and none is stored, or the stored one has expired and cannot be refreshed,
// the coordinator:
//
//  1. Resolves the authorization server from the agent's challenge or its
//     protected resource metadata, and discovers its endpoints
//  2. Binds a local callback listener on the configured port
//  3. Registers a client dynamically when no client information is stored
//  4. Generates a PKCE verifier and state and persists the verifier
//  5. Opens the authorization URL in the browser, or prints it
//  6. Waits for exactly one callback on the listener
//  7. Exchanges the code, stores the token and deletes the verifier
//
// # Callback outcomes
//
//   - error=access_denied: *UserCancelledError
//   - any other error: *AuthorizationError carrying the description
//   - code with a matching state: the code is exchanged
//   - neither code nor error: ErrProtocolViolation
//
// # Storage
//
// Credentials are kept per agent ID in a Store. MemoryStore lives for the
// process only. FileStore writes one 0600 JSON file per agent and watches the
// directory so that changes made by another process are picked up.
//
// SECURITY: token and verifier values are never logged. Store operations are
// logged with a SECURITY_AUDIT prefix naming the agent and the event only.
//
// # Limitations
//
// The callback port is fixed for an attempt, so two concurrent authorizations
// on the same port cannot run at once. Concurrent callers of one Coordinator
// share a single flow.
package oauth
