package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"agenthook/internal/events"
	"agenthook/pkg/logging"
	"agenthook/pkg/task"
)

// MaxBodyBytes bounds the size of an accepted webhook body.
const MaxBodyBytes = 1 << 20

// Intake authenticates and parses inbound webhook bodies. It is shared by
// the one-shot listener and the Correlator so both apply the same rules.
type Intake struct {
	Verifier    *SignatureVerifier
	ReportKinds []task.Kind
	Events      *events.Emitter
}

// Accept verifies the signature over the exact body and parses it. The hint
// supplies values the body may omit, such as an operation id from the path.
func (in *Intake) Accept(headers http.Header, body []byte, hint ParseOptions) (Delivery, error) {
	if err := in.Verifier.VerifyRequest(headers, body); err != nil {
		in.reject(hint.OperationID, err)
		return Delivery{}, err
	}

	if hint.ReportKinds == nil {
		hint.ReportKinds = in.ReportKinds
	}
	d, err := ParseDelivery(body, hint)
	if err != nil {
		in.reject(hint.OperationID, err)
		return Delivery{}, err
	}

	if d.Kind == DeliveryStatusChange {
		in.Events.Emit(events.ReasonWebhookReceived, events.EventData{
			Subject:  d.Status.OperationID,
			TaskKind: string(d.Status.TaskKind),
			Status:   string(d.Status.Status),
		})
	}
	return d, nil
}

func (in *Intake) reject(operationID string, err error) {
	logging.Warn(subsystem, "Rejected webhook delivery for operation %q: %v", operationID, err)
	in.Events.Emit(events.ReasonWebhookRejected, events.EventData{
		Subject: operationID,
		Error:   err.Error(),
	})
}

// StatusCode maps an Accept error to the HTTP status returned to the sender.
func StatusCode(err error) int {
	var de *DeliveryError
	if errors.As(err, &de) && de.IsSignatureFailure() {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrMalformedPayload) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Flush pushes any buffered response bytes to the client.
func Flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
