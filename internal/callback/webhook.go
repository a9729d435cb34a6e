package callback

import (
	"context"
	"net/http"

	"agenthook/internal/webhook"
	"agenthook/pkg/logging"
	"agenthook/pkg/task"
)

// WebhookOptions configures the receiver for a single operation.
type WebhookOptions struct {
	OperationID string
	TaskKind    task.Kind

	// Intake verifies and parses bodies. A zero Intake accepts unsigned bodies.
	Intake *webhook.Intake

	// Router, when set, receives every accepted delivery after the reply.
	Router *webhook.Router
}

// WebhookReceiver settles on the first status-change callback for the
// operation that ends the wait. Progress updates and report notifications
// are acknowledged without settling.
func WebhookReceiver(opts WebhookOptions) ReceiveFunc[*webhook.CallbackPayload] {
	intake := opts.Intake
	if intake == nil {
		intake = &webhook.Intake{}
	}

	return func(r *http.Request, body []byte) Result[*webhook.CallbackPayload] {
		d, err := intake.Accept(r.Header, body, webhook.ParseOptions{
			OperationID: opts.OperationID,
			TaskKind:    opts.TaskKind,
		})
		if err != nil {
			return Result[*webhook.CallbackPayload]{
				Reply: JSONReply(webhook.StatusCode(err), map[string]string{"error": err.Error()}),
			}
		}

		if id := d.OperationID(); opts.OperationID != "" && id != opts.OperationID {
			logging.Warn(subsystem, "Ignoring delivery for operation %q while waiting for %q", id, opts.OperationID)
			return Result[*webhook.CallbackPayload]{
				Reply: JSONReply(http.StatusNotFound, map[string]string{"status": "unknown_operation", "operation_id": id}),
			}
		}

		res := Result[*webhook.CallbackPayload]{
			Reply: JSONReply(http.StatusAccepted, map[string]string{"status": "accepted", "operation_id": d.OperationID()}),
		}
		if opts.Router != nil {
			ctx := context.WithoutCancel(r.Context())
			res.After = func() { _ = opts.Router.Dispatch(ctx, d) }
		}
		if d.Kind == webhook.DeliveryStatusChange && d.Status.Settles() {
			res.Settle = true
			res.Value = d.Status
		}
		return res
	}
}

// NewWebhookServer creates a blocking-mode server for one operation.
func NewWebhookServer(cfg Config, opts WebhookOptions) *Server[*webhook.CallbackPayload] {
	if cfg.ID == "" {
		cfg.ID = opts.OperationID
	}
	return New(cfg, WebhookReceiver(opts))
}
