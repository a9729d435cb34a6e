// Package callback provides the short-lived local HTTP listener that receives
// out-of-band results: webhook deliveries for remote operations and OAuth
// authorization redirects.
//
// A Server runs in blocking mode. It binds one path, settles a single
// completion with the first request that its ReceiveFunc accepts, answers
// later requests with "already_processed" and shuts itself down shortly
// after. A Dispatcher runs in library mode and forwards every request under
// its path to an http.Handler, normally a webhook.Correlator.
//
// Both answer requests on their path that use a different method with a
// health probe:
//
//	{"status":"ready","id":"<listener id>"}
package callback
