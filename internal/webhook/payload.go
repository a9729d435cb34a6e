package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"agenthook/pkg/task"
)

// DeliveryKind discriminates the two shapes a webhook body can take.
type DeliveryKind string

const (
	// DeliveryStatusChange is a task status-change callback.
	DeliveryStatusChange DeliveryKind = "status_change"

	// DeliveryNotification is a periodic report notification.
	DeliveryNotification DeliveryKind = "notification"
)

// NotificationType classifies a report notification.
type NotificationType string

const (
	NotificationScheduled NotificationType = "scheduled"
	NotificationFinal     NotificationType = "final"
	NotificationDelayed   NotificationType = "delayed"
)

// CallbackPayload is a status-change callback for one operation.
type CallbackPayload struct {
	OperationID string          `json:"operation_id,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
	ContextID   string          `json:"context_id,omitempty"`
	TaskKind    task.Kind       `json:"task_type,omitempty"`
	Status      task.Status     `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Message     string          `json:"message,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`

	// Raw is the exact body the payload was parsed from.
	Raw []byte `json:"-"`
}

// Settles reports whether the payload ends a wait on its operation. Terminal
// statuses settle, and so do statuses that need the caller to act
// (input-required, auth-required). Progress updates and unrecognized or
// missing statuses do not.
func (p *CallbackPayload) Settles() bool {
	if p == nil {
		return false
	}
	return p.Status.IsTerminal() || p.Status == task.StatusInputRequired || p.Status == task.StatusAuthRequired
}

// DecodeResult unmarshals the result into v.
func (p *CallbackPayload) DecodeResult(v any) error {
	if len(p.Result) == 0 || bytes.Equal(p.Result, []byte("null")) {
		return fmt.Errorf("payload for operation %s has no result", p.OperationID)
	}
	return json.Unmarshal(p.Result, v)
}

// NotificationPayload is a periodic report delivered for a long-running operation.
type NotificationPayload struct {
	OperationID      string           `json:"operation_id,omitempty"`
	TaskKind         task.Kind        `json:"task_type,omitempty"`
	NotificationType NotificationType `json:"notification_type"`
	SequenceNumber   int              `json:"sequence_number,omitempty"`
	NextExpectedAt   *time.Time       `json:"next_expected_at,omitempty"`
	Result           json.RawMessage  `json:"result,omitempty"`

	Raw []byte `json:"-"`
}

// IsFinal reports whether no further notifications will follow.
func (n *NotificationPayload) IsFinal() bool {
	return n.NotificationType == NotificationFinal
}

// Delivery is a parsed webhook body. Exactly one of Status or Notification
// is set, matching Kind.
type Delivery struct {
	Kind         DeliveryKind
	Status       *CallbackPayload
	Notification *NotificationPayload
}

// OperationID returns the correlation key carried by the delivery.
func (d Delivery) OperationID() string {
	switch d.Kind {
	case DeliveryNotification:
		return d.Notification.OperationID
	default:
		return d.Status.OperationID
	}
}

// TaskKind returns the task kind carried by the delivery.
func (d Delivery) TaskKind() task.Kind {
	switch d.Kind {
	case DeliveryNotification:
		return d.Notification.TaskKind
	default:
		return d.Status.TaskKind
	}
}

// ParseOptions controls how ParseDelivery classifies a body.
type ParseOptions struct {
	// ReportKinds are the task kinds that may carry notifications. Nil
	// means task.DefaultReportKinds.
	ReportKinds []task.Kind

	// OperationID and TaskKind fill in values the body omits, typically
	// taken from the request path.
	OperationID string
	TaskKind    task.Kind
}

func (o ParseOptions) isReportKind(kind task.Kind) bool {
	kinds := o.ReportKinds
	if kinds == nil {
		kinds = task.DefaultReportKinds
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// wirePayload accepts both the flat callback shape and the A2A task shape,
// where status is an object and identifiers live in metadata.
type wirePayload struct {
	OperationID      string          `json:"operation_id"`
	TaskID           string          `json:"task_id"`
	ID               string          `json:"id"`
	ContextID        string          `json:"context_id"`
	A2AContextID     string          `json:"contextId"`
	TaskType         string          `json:"task_type"`
	Status           json.RawMessage `json:"status"`
	Result           json.RawMessage `json:"result"`
	Artifacts        json.RawMessage `json:"artifacts"`
	Message          json.RawMessage `json:"message"`
	Timestamp        string          `json:"timestamp"`
	NotificationType string          `json:"notification_type"`
	SequenceNumber   any             `json:"sequence_number"`
	NextExpectedAt   string          `json:"next_expected_at"`
	Metadata         map[string]any  `json:"metadata"`
}

type wireStatus struct {
	State     string          `json:"state"`
	Message   json.RawMessage `json:"message"`
	Timestamp string          `json:"timestamp"`
}

// ParseDelivery validates a webhook body once at the boundary and returns
// its tagged variant. A body is a notification only when its task kind is
// a report kind and it carries notification_type; everything else is a
// status-change callback.
func ParseDelivery(body []byte, opts ParseOptions) (Delivery, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Delivery{}, &DeliveryError{Reason: ErrMalformedPayload, Detail: "empty body"}
	}
	if trimmed[0] != '{' {
		return Delivery{}, &DeliveryError{Reason: ErrMalformedPayload, Detail: "body is not a JSON object"}
	}

	var w wirePayload
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Delivery{}, &DeliveryError{Reason: ErrMalformedPayload, Detail: err.Error()}
	}

	operationID := firstNonEmpty(w.OperationID, metadataString(w.Metadata, "operation_id"), opts.OperationID)
	kind := task.Kind(firstNonEmpty(w.TaskType, metadataString(w.Metadata, "task_type"), string(opts.TaskKind)))

	if w.NotificationType != "" && opts.isReportKind(kind) {
		n, err := parseNotification(w, operationID, kind)
		if err != nil {
			return Delivery{}, err
		}
		n.Raw = body
		return Delivery{Kind: DeliveryNotification, Notification: n}, nil
	}

	p, err := parseStatusChange(w, operationID, kind)
	if err != nil {
		return Delivery{}, err
	}
	p.Raw = body
	return Delivery{Kind: DeliveryStatusChange, Status: p}, nil
}

func parseStatusChange(w wirePayload, operationID string, kind task.Kind) (*CallbackPayload, error) {
	p := &CallbackPayload{
		OperationID: operationID,
		TaskID:      firstNonEmpty(w.TaskID, w.ID),
		ContextID:   firstNonEmpty(w.ContextID, w.A2AContextID),
		TaskKind:    kind,
		Status:      task.StatusUnknown,
		Result:      w.Result,
		Message:     messageText(w.Message),
		Timestamp:   w.Timestamp,
	}
	if len(p.Result) == 0 && len(w.Artifacts) > 0 {
		p.Result = w.Artifacts
	}

	status := bytes.TrimSpace(w.Status)
	switch {
	case len(status) == 0 || bytes.Equal(status, []byte("null")):
	case status[0] == '"':
		var s string
		if err := json.Unmarshal(status, &s); err != nil {
			return nil, &DeliveryError{Reason: ErrMalformedPayload, Detail: "status: " + err.Error()}
		}
		p.Status = task.ParseStatus(s)
	case status[0] == '{':
		var ws wireStatus
		if err := json.Unmarshal(status, &ws); err != nil {
			return nil, &DeliveryError{Reason: ErrMalformedPayload, Detail: "status: " + err.Error()}
		}
		p.Status = task.ParseStatus(ws.State)
		if p.Message == "" {
			p.Message = messageText(ws.Message)
		}
		if p.Timestamp == "" {
			p.Timestamp = ws.Timestamp
		}
	default:
		return nil, &DeliveryError{Reason: ErrMalformedPayload, Detail: "status must be a string or an object"}
	}
	return p, nil
}

func parseNotification(w wirePayload, operationID string, kind task.Kind) (*NotificationPayload, error) {
	n := &NotificationPayload{
		OperationID:      operationID,
		TaskKind:         kind,
		NotificationType: NotificationType(strings.ToLower(w.NotificationType)),
		Result:           w.Result,
	}
	switch n.NotificationType {
	case NotificationScheduled, NotificationFinal, NotificationDelayed:
	default:
		return nil, &DeliveryError{Reason: ErrMalformedPayload, Detail: fmt.Sprintf("unknown notification_type %q", w.NotificationType)}
	}

	if w.SequenceNumber != nil {
		seq, err := cast.ToIntE(w.SequenceNumber)
		if err != nil {
			return nil, &DeliveryError{Reason: ErrMalformedPayload, Detail: "sequence_number: " + err.Error()}
		}
		n.SequenceNumber = seq
	}
	if w.NextExpectedAt != "" {
		at, err := time.Parse(time.RFC3339, w.NextExpectedAt)
		if err != nil {
			return nil, &DeliveryError{Reason: ErrMalformedPayload, Detail: "next_expected_at: " + err.Error()}
		}
		n.NextExpectedAt = &at
	}
	return n, nil
}

// messageText flattens a message that is either a plain string or an A2A
// message object with text parts.
func messageText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var m struct {
		Parts []struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	var texts []string
	for _, part := range m.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func metadataString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	return cast.ToString(md[key])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
