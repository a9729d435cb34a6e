package events

import (
	"time"
)

// EventType represents the severity of a lifecycle event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Operation events
const (
	// ReasonOperationSubmitted indicates a request was sent to a remote agent.
	ReasonOperationSubmitted EventReason = "OperationSubmitted"

	// ReasonOperationPending indicates the agent accepted the request and will report back later.
	ReasonOperationPending EventReason = "OperationPending"

	// ReasonOperationCompleted indicates an operation reached a successful terminal status.
	ReasonOperationCompleted EventReason = "OperationCompleted"

	// ReasonOperationFailed indicates an operation reached a failed, rejected or canceled status.
	ReasonOperationFailed EventReason = "OperationFailed"

	// ReasonOperationTimedOut indicates no result arrived before the deadline.
	ReasonOperationTimedOut EventReason = "OperationTimedOut"

	// ReasonOperationInputRequired indicates the agent asked a clarification question.
	ReasonOperationInputRequired EventReason = "OperationInputRequired"
)

// Webhook events
const (
	// ReasonWebhookReceived indicates a status-change callback was accepted.
	ReasonWebhookReceived EventReason = "WebhookReceived"

	// ReasonWebhookRejected indicates a callback failed parsing or signature verification.
	ReasonWebhookRejected EventReason = "WebhookRejected"

	// ReasonNotificationReceived indicates a periodic report notification was delivered.
	ReasonNotificationReceived EventReason = "NotificationReceived"

	// ReasonHandlerFailed indicates an application handler returned an error or panicked.
	ReasonHandlerFailed EventReason = "HandlerFailed"
)

// Tunnel events
const (
	// ReasonTunnelStarted indicates a public URL was discovered for the local listener.
	ReasonTunnelStarted EventReason = "TunnelStarted"

	// ReasonTunnelFailed indicates the tunnel process could not provide a URL.
	ReasonTunnelFailed EventReason = "TunnelFailed"
)

// Authorization events
const (
	// ReasonAuthorizationStarted indicates the browser authorization flow began.
	ReasonAuthorizationStarted EventReason = "AuthorizationStarted"

	// ReasonAuthorizationCompleted indicates tokens were obtained.
	ReasonAuthorizationCompleted EventReason = "AuthorizationCompleted"

	// ReasonAuthorizationCancelled indicates the user denied access.
	ReasonAuthorizationCancelled EventReason = "AuthorizationCancelled"

	// ReasonAuthorizationFailed indicates the flow failed for any other reason.
	ReasonAuthorizationFailed EventReason = "AuthorizationFailed"

	// ReasonCredentialsInvalidated indicates stored credentials were removed.
	ReasonCredentialsInvalidated EventReason = "CredentialsInvalidated"
)

// EventData contains the variable parts of an event message.
type EventData struct {
	// Subject is the identifier the event is about: an operation id, agent id or URL.
	Subject string

	// AgentID is the remote agent involved, if any.
	AgentID string

	// TaskKind is the task kind involved, if any.
	TaskKind string

	// Status is the task status reported, if any.
	Status string

	// Error contains error information for failure events.
	Error string

	// Duration is a deadline or elapsed time, if relevant.
	Duration time.Duration
}

// Event is a single lifecycle event delivered to a Sink.
type Event struct {
	Type    EventType
	Reason  EventReason
	Message string
	Data    EventData
	Time    time.Time
}

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonOperationFailed,
		ReasonOperationTimedOut,
		ReasonWebhookRejected,
		ReasonHandlerFailed,
		ReasonTunnelFailed,
		ReasonAuthorizationFailed:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
