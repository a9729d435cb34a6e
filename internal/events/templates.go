package events

import (
	"fmt"
	"strings"
)

// MessageTemplateEngine provides dynamic message generation for events.
type MessageTemplateEngine struct {
	templates map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

// loadDefaultTemplates initializes the default message templates for all event reasons.
func (e *MessageTemplateEngine) loadDefaultTemplates() {
	e.templates[ReasonOperationSubmitted] = "Operation {{.Subject}} ({{.TaskKind}}) sent to agent {{.AgentID}}"
	e.templates[ReasonOperationPending] = "Operation {{.Subject}} is {{.Status}}, waiting for webhook{{if .Duration}} up to {{.Duration}}{{end}}"
	e.templates[ReasonOperationCompleted] = "Operation {{.Subject}} ({{.TaskKind}}) completed"
	e.templates[ReasonOperationFailed] = "Operation {{.Subject}} ({{.TaskKind}}) ended with status {{.Status}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonOperationTimedOut] = "Operation {{.Subject}} timed out{{if .Duration}} after {{.Duration}}{{end}}"
	e.templates[ReasonOperationInputRequired] = "Operation {{.Subject}} requires input from the caller"

	e.templates[ReasonWebhookReceived] = "Webhook for operation {{.Subject}} ({{.TaskKind}}) reported {{.Status}}"
	e.templates[ReasonWebhookRejected] = "Webhook rejected{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonNotificationReceived] = "Report notification for operation {{.Subject}} ({{.TaskKind}})"
	e.templates[ReasonHandlerFailed] = "Handler for {{.TaskKind}} failed on operation {{.Subject}}{{if .Error}}: {{.Error}}{{end}}"

	e.templates[ReasonTunnelStarted] = "Tunnel exposes callback listener at {{.Subject}}"
	e.templates[ReasonTunnelFailed] = "Tunnel failed{{if .Error}}: {{.Error}}{{end}}"

	e.templates[ReasonAuthorizationStarted] = "Authorization started for agent {{.AgentID}}"
	e.templates[ReasonAuthorizationCompleted] = "Authorization completed for agent {{.AgentID}}"
	e.templates[ReasonAuthorizationCancelled] = "Authorization cancelled by user for agent {{.AgentID}}"
	e.templates[ReasonAuthorizationFailed] = "Authorization failed for agent {{.AgentID}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonCredentialsInvalidated] = "Credentials ({{.Subject}}) invalidated for agent {{.AgentID}}"
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	template, exists := e.templates[reason]
	if !exists {
		// Fallback for unknown event reasons
		return fmt.Sprintf("Event: %s for %s", string(reason), data.Subject)
	}

	return e.renderTemplate(template, data)
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, template string) {
	e.templates[reason] = template
}

// renderTemplate performs simple template rendering with EventData.
func (e *MessageTemplateEngine) renderTemplate(template string, data EventData) string {
	result := template

	result = strings.ReplaceAll(result, "{{.Subject}}", data.Subject)
	result = strings.ReplaceAll(result, "{{.AgentID}}", data.AgentID)
	result = strings.ReplaceAll(result, "{{.TaskKind}}", data.TaskKind)
	result = strings.ReplaceAll(result, "{{.Status}}", data.Status)
	result = strings.ReplaceAll(result, "{{.Error}}", data.Error)

	if strings.Contains(result, "{{.Duration}}") {
		if data.Duration > 0 {
			result = strings.ReplaceAll(result, "{{.Duration}}", data.Duration.String())
		} else {
			result = strings.ReplaceAll(result, "{{.Duration}}", "")
		}
	}

	result = e.renderConditional(result, "{{if .Error}}", "{{end}}", data.Error != "")
	result = e.renderConditional(result, "{{if .Duration}}", "{{end}}", data.Duration > 0)

	return result
}

// renderConditional handles a single conditional block.
// Supports: {{if .FieldName}}content{{end}}
func (e *MessageTemplateEngine) renderConditional(template, startMarker, endMarker string, condition bool) string {
	startIndex := strings.Index(template, startMarker)
	if startIndex == -1 {
		return template
	}

	endIndex := strings.Index(template[startIndex:], endMarker)
	if endIndex == -1 {
		return template
	}

	endIndex += startIndex

	before := template[:startIndex]
	after := template[endIndex+len(endMarker):]
	if condition {
		content := template[startIndex+len(startMarker) : endIndex]
		return before + content + after
	}
	return before + after
}
