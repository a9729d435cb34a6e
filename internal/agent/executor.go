package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agenthook/internal/completion"
	"agenthook/internal/config"
	"agenthook/internal/events"
	"agenthook/internal/webhook"
	"agenthook/pkg/logging"
	"agenthook/pkg/task"
)

// InputHandler answers an agent's input-required question. Returning an
// error aborts the operation.
type InputHandler func(ctx context.Context, p *webhook.CallbackPayload) (string, error)

// Options configures an Executor.
type Options struct {
	Webhook config.WebhookConfig
	Tunnel  config.TunnelConfig
	Events  *events.Emitter

	// Input answers clarification questions. Without it an input-required
	// status is returned to the caller as the result.
	Input InputHandler

	// Router receives every delivery accepted by a one-shot listener.
	Router *webhook.Router

	// Correlator switches the executor to library mode: operations are
	// registered with a shared listener reachable at PublicBaseURL instead
	// of starting a listener per call.
	Correlator    *webhook.Correlator
	PublicBaseURL string
}

// ExecuteRequest is one task to run on an agent.
type ExecuteRequest struct {
	// OperationID is generated when empty.
	OperationID string
	TaskKind    task.Kind
	Params      map[string]any

	// Timeout bounds the whole operation. Zero uses the webhook timeout.
	Timeout time.Duration

	// NoWait returns as soon as the agent accepts the task. In library
	// mode the operation stays registered with the Correlator.
	NoWait bool
}

// Result is the outcome of an operation.
type Result struct {
	OperationID string
	AgentID     string
	Status      task.Status
	Payload     *webhook.CallbackPayload

	// WebhookURL is the URL given to the agent on the last round.
	WebhookURL string
	// Async is set when the final status arrived by webhook.
	Async               bool
	ClarificationRounds int
	Duration            time.Duration
}

// Executor runs operations against agents.
type Executor struct {
	opts   Options
	intake *webhook.Intake
}

// NewExecutor creates an executor.
func NewExecutor(opts Options) *Executor {
	var kinds []task.Kind
	if len(opts.Webhook.ReportKinds) > 0 {
		kinds = opts.Webhook.Kinds()
	}
	return &Executor{
		opts: opts,
		intake: &webhook.Intake{
			Verifier:    webhook.NewSignatureVerifier(opts.Webhook.Secret, opts.Webhook.SignatureHeader),
			ReportKinds: kinds,
			Events:      opts.Events,
		},
	}
}

// NewOperationID returns a fresh operation id.
func NewOperationID() string {
	return "op_" + uuid.NewString()
}

// Execute calls the agent and drives the operation to a result. Failed,
// rejected and canceled outcomes are returned as *TaskFailedError; a
// missing webhook as *completion.TimeoutError.
func (e *Executor) Execute(ctx context.Context, a *Agent, req ExecuteRequest) (*Result, error) {
	if req.TaskKind == "" {
		return nil, errors.New("task kind is required")
	}

	opID := req.OperationID
	if opID == "" {
		opID = NewOperationID()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.opts.Webhook.Timeout
	}
	if timeout <= 0 {
		timeout = config.DefaultWebhookTimeout
	}

	op := webhook.NewOperation(opID, req.TaskKind, a.ID(), timeout)
	op.MaxClarificationRounds = e.opts.Webhook.MaxClarificationRounds

	res := &Result{OperationID: opID, AgentID: a.ID()}
	call := Request{
		OperationID:   opID,
		TaskKind:      req.TaskKind,
		Params:        req.Params,
		WebhookSecret: e.opts.Webhook.Secret,
	}

	authorized := false
	for {
		p, err := e.round(ctx, a, op, &call, req.NoWait, res)
		if err == nil && p.Status == task.StatusAuthRequired {
			err = &AuthRequiredError{AgentID: a.ID(), Err: errors.New(statusMessage(p))}
		}

		if err != nil {
			var authErr *AuthRequiredError
			if errors.As(err, &authErr) && a.Auth != nil && !authorized {
				authorized = true
				logging.Info(subsystem, "Agent %s requires authorization; starting OAuth flow", a.ID())
				if _, err := a.Auth.EnsureToken(ctx, authErr.Challenge); err != nil {
					e.failed(op, res, err)
					return nil, err
				}
				continue
			}
			e.failed(op, res, err)
			return nil, err
		}

		op.SetStatus(p.Status)
		if p.Status != task.StatusInputRequired {
			return e.finish(op, res, p)
		}

		rounds, err := op.NextClarification()
		e.emit(events.ReasonOperationInputRequired, op, p.Status, nil)
		if err != nil {
			e.failed(op, res, err)
			return nil, err
		}
		if e.opts.Input == nil {
			return e.finish(op, res, p)
		}

		answer, err := e.opts.Input(ctx, p)
		if err != nil {
			err = fmt.Errorf("no input for operation %s: %w", opID, err)
			e.failed(op, res, err)
			return nil, err
		}
		logging.Info(subsystem, "Answering clarification %d for operation %s", rounds, opID)
		call.Input = answer
		call.TaskID = p.TaskID
		call.ContextID = p.ContextID
	}
}

// round makes one call and, when the agent defers, waits for its webhook.
func (e *Executor) round(ctx context.Context, a *Agent, op *webhook.Operation, call *Request, noWait bool, res *Result) (*webhook.CallbackPayload, error) {
	s, err := e.openSink(ctx, op)
	if err != nil {
		return nil, err
	}
	call.WebhookURL = s.URL()
	res.WebhookURL = s.URL()
	res.Async = false

	e.emit(events.ReasonOperationSubmitted, op, "", nil)
	p, err := a.Transport.Call(ctx, *call)
	if err != nil || !p.Status.IsPending() {
		_ = s.Close()
		return p, err
	}

	op.SetStatus(p.Status)
	if noWait {
		s.Release()
		return p, nil
	}
	defer s.Close()

	logging.Info(subsystem, "Operation %s is %s; waiting for webhook at %s", op.ID, p.Status, s.URL())
	got, err := s.Wait(ctx, op.Remaining())
	if err != nil {
		return nil, err
	}
	if got.TaskID == "" {
		got.TaskID = p.TaskID
	}
	if got.ContextID == "" {
		got.ContextID = p.ContextID
	}
	res.Async = true
	return got, nil
}

func (e *Executor) finish(op *webhook.Operation, res *Result, p *webhook.CallbackPayload) (*Result, error) {
	res.Status = p.Status
	res.Payload = p
	res.ClarificationRounds = op.ClarificationRounds()
	res.Duration = time.Since(op.CreatedAt)

	switch {
	case p.Status.IsSuccess():
		if e.reportsOwnOutcome(res) {
			e.emit(events.ReasonOperationCompleted, op, p.Status, nil)
		}
		return res, nil
	case p.Status.IsTerminal():
		if e.reportsOwnOutcome(res) {
			e.emit(events.ReasonOperationFailed, op, p.Status, errors.New(statusMessage(p)))
		}
		return nil, &TaskFailedError{
			OperationID: op.ID,
			Status:      p.Status,
			Message:     p.Message,
			Payload:     p,
		}
	default:
		return res, nil
	}
}

func (e *Executor) failed(op *webhook.Operation, res *Result, err error) {
	res.Duration = time.Since(op.CreatedAt)
	if completion.IsTimeout(err) {
		logging.Warn(subsystem, "Operation %s timed out: %v", op.ID, err)
		if e.opts.Correlator == nil {
			e.emit(events.ReasonOperationTimedOut, op, op.Status(), nil)
		}
		return
	}
	logging.Error(subsystem, err, "Operation %s failed", op.ID)
	e.emit(events.ReasonOperationFailed, op, op.Status(), err)
}

// reportsOwnOutcome is false when the shared Correlator already emitted
// the outcome on webhook delivery.
func (e *Executor) reportsOwnOutcome(res *Result) bool {
	return e.opts.Correlator == nil || !res.Async
}

func (e *Executor) emit(reason events.EventReason, op *webhook.Operation, status task.Status, err error) {
	data := events.EventData{
		Subject:  op.ID,
		AgentID:  op.AgentID,
		TaskKind: string(op.TaskKind),
		Status:   string(status),
		Duration: time.Since(op.CreatedAt),
	}
	if err != nil {
		data.Error = err.Error()
	}
	e.opts.Events.Emit(reason, data)
}

func statusMessage(p *webhook.CallbackPayload) string {
	if p.Message != "" {
		return p.Message
	}
	return "agent reported " + string(p.Status)
}
