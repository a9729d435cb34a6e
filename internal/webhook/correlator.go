package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"agenthook/internal/completion"
	"agenthook/internal/events"
	"agenthook/pkg/logging"
	"agenthook/pkg/task"
)

// ErrCorrelatorClosed rejects operations still pending when the correlator closes.
var ErrCorrelatorClosed = errors.New("correlator closed")

// CorrelatorOptions configures a Correlator.
type CorrelatorOptions struct {
	Verifier    *SignatureVerifier
	ReportKinds []task.Kind
	Router      *Router
	Events      *events.Emitter

	// MaxClarificationRounds is applied to operations created by Track.
	MaxClarificationRounds int

	// PathPrefix is the path the correlator is mounted under. A path
	// segment below it names the operation when the body carries no id.
	// Defaults to DefaultPathPrefix.
	PathPrefix string
}

// DefaultPathPrefix is the mount path assumed when none is configured.
const DefaultPathPrefix = "/webhook"

type pending struct {
	op    *Operation
	timer *time.Timer
}

// Correlator matches inbound webhooks to pending operations by operation id
// and hands every accepted delivery to the Router. It serves any number of
// concurrent operations from one listener.
type Correlator struct {
	intake   Intake
	router   *Router
	events   *events.Emitter
	maxRound int
	prefix   string

	mu     sync.Mutex
	ops    map[string]*pending
	closed bool
}

// NewCorrelator creates a Correlator.
func NewCorrelator(opts CorrelatorOptions) *Correlator {
	prefix := opts.PathPrefix
	if prefix == "" {
		prefix = DefaultPathPrefix
	}
	return &Correlator{
		prefix:   prefix,
		intake: Intake{
			Verifier:    opts.Verifier,
			ReportKinds: opts.ReportKinds,
			Events:      opts.Events,
		},
		router:   opts.Router,
		events:   opts.Events,
		maxRound: opts.MaxClarificationRounds,
		ops:      make(map[string]*pending),
	}
}

// Router returns the router deliveries are dispatched to.
func (c *Correlator) Router() *Router {
	return c.router
}

// Track creates and registers an operation.
func (c *Correlator) Track(id string, kind task.Kind, agentID string, timeout time.Duration) (*Operation, error) {
	op := NewOperation(id, kind, agentID, timeout)
	op.MaxClarificationRounds = c.maxRound
	if err := c.Register(op); err != nil {
		return nil, err
	}
	return op, nil
}

// Register adds op to the table. The operation is removed and rejected with
// a *completion.TimeoutError when its deadline passes.
func (c *Correlator) Register(op *Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCorrelatorClosed
	}
	if _, exists := c.ops[op.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
	}

	p := &pending{op: op}
	p.timer = time.AfterFunc(op.Remaining(), func() { c.expire(p) })
	c.ops[op.ID] = p

	c.events.Emit(events.ReasonOperationPending, events.EventData{
		Subject:  op.ID,
		AgentID:  op.AgentID,
		TaskKind: string(op.TaskKind),
		Duration: op.Deadline.Sub(op.CreatedAt),
	})
	return nil
}

// Lookup returns a pending operation.
func (c *Correlator) Lookup(id string) (*Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.ops[id]
	if !ok {
		return nil, false
	}
	return p.op, true
}

// Await waits for a pending operation to settle. Callers that may race a
// fast delivery should hold the *Operation from Track and call its Wait.
func (c *Correlator) Await(ctx context.Context, id string) (*CallbackPayload, error) {
	op, ok := c.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	return op.Wait(ctx)
}

// Cancel removes a pending operation and rejects its waiters with
// context.Canceled. It reports whether the operation was pending.
func (c *Correlator) Cancel(id string) bool {
	p := c.remove(id, nil)
	if p == nil {
		return false
	}
	p.op.Reject(context.Canceled)
	return true
}

// Pending returns the live operations ordered by creation time.
func (c *Correlator) Pending() []*Operation {
	c.mu.Lock()
	ops := make([]*Operation, 0, len(c.ops))
	for _, p := range c.ops {
		ops = append(ops, p.op)
	}
	c.mu.Unlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops
}

// Close rejects every pending operation and refuses new ones.
func (c *Correlator) Close() error {
	c.mu.Lock()
	c.closed = true
	drained := c.ops
	c.ops = make(map[string]*pending)
	c.mu.Unlock()

	for _, p := range drained {
		p.timer.Stop()
		p.op.Reject(ErrCorrelatorClosed)
	}
	return nil
}

// Accept authenticates and parses a delivery and settles the matching
// operation if the delivery ends it. It does not run handlers.
func (c *Correlator) Accept(headers http.Header, body []byte, pathOperationID string) (Delivery, error) {
	hint := ParseOptions{OperationID: pathOperationID}
	if op, ok := c.Lookup(pathOperationID); ok {
		hint.TaskKind = op.TaskKind
	}

	d, err := c.intake.Accept(headers, body, hint)
	if err != nil {
		return Delivery{}, err
	}
	if d.Kind == DeliveryStatusChange {
		c.settle(d.Status)
	}
	return d, nil
}

// Handle runs the whole pipeline for one body: verify, parse, settle and
// dispatch. Handler failures are logged and not returned.
func (c *Correlator) Handle(ctx context.Context, headers http.Header, body []byte, pathOperationID string) (Delivery, error) {
	d, err := c.Accept(headers, body, pathOperationID)
	if err != nil {
		return Delivery{}, err
	}
	_ = c.router.Dispatch(ctx, d)
	return d, nil
}

// ServeHTTP accepts webhook POSTs. The acknowledgement is written and
// flushed before any handler runs. The last path segment below the prefix
// is used as the operation id when the body carries none.
func (c *Correlator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}

	pathID := r.PathValue("operation_id")
	if pathID == "" {
		pathID = operationIDFromPath(c.prefix, r.URL.Path)
	}

	d, err := c.Accept(r.Header, body, pathID)
	if err != nil {
		WriteJSON(w, StatusCode(err), map[string]string{"error": err.Error()})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "operation_id": d.OperationID()})
	Flush(w)

	_ = c.router.Dispatch(context.WithoutCancel(r.Context()), d)
}

func (c *Correlator) settle(p *CallbackPayload) {
	if p.OperationID == "" {
		logging.Debug(subsystem, "Status callback without operation id; dispatching only")
		return
	}

	c.mu.Lock()
	entry, ok := c.ops[p.OperationID]
	if !ok {
		c.mu.Unlock()
		logging.Debug(subsystem, "No pending operation %s; dispatching only", p.OperationID)
		return
	}
	if p.TaskKind == "" {
		p.TaskKind = entry.op.TaskKind
	}
	if !p.Settles() {
		if p.Status != task.StatusUnknown {
			entry.op.SetStatus(p.Status)
		}
		c.mu.Unlock()
		logging.Debug(subsystem, "Operation %s is %s", p.OperationID, p.Status)
		return
	}
	delete(c.ops, p.OperationID)
	entry.timer.Stop()
	c.mu.Unlock()

	entry.op.Resolve(p)
	c.events.Emit(reasonFor(p.Status), events.EventData{
		Subject:  p.OperationID,
		AgentID:  entry.op.AgentID,
		TaskKind: string(p.TaskKind),
		Status:   string(p.Status),
		Duration: time.Since(entry.op.CreatedAt),
	})
}

func (c *Correlator) expire(p *pending) {
	if c.remove(p.op.ID, p) == nil {
		return
	}
	timeout := p.op.Deadline.Sub(p.op.CreatedAt)
	p.op.Reject(&completion.TimeoutError{Timeout: timeout, Subject: "webhook for operation " + p.op.ID})
	logging.Warn(subsystem, "Operation %s timed out after %s", p.op.ID, timeout)
	c.events.Emit(events.ReasonOperationTimedOut, events.EventData{
		Subject:  p.op.ID,
		AgentID:  p.op.AgentID,
		TaskKind: string(p.op.TaskKind),
		Duration: timeout,
	})
}

// remove deletes id from the table. When want is set, only that exact
// entry is removed.
func (c *Correlator) remove(id string, want *pending) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.ops[id]
	if !ok || (want != nil && p != want) {
		return nil
	}
	delete(c.ops, id)
	p.timer.Stop()
	return p
}

func reasonFor(s task.Status) events.EventReason {
	switch {
	case s.IsSuccess():
		return events.ReasonOperationCompleted
	case s == task.StatusInputRequired:
		return events.ReasonOperationInputRequired
	default:
		return events.ReasonOperationFailed
	}
}

// operationIDFromPath returns the last segment of path below prefix, or ""
// when path is the prefix itself or lies outside it.
func operationIDFromPath(prefix, path string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	path = "/" + strings.Trim(path, "/")

	var rest string
	switch {
	case prefix == "/":
		rest = path
	case strings.HasPrefix(path, prefix+"/"):
		rest = strings.TrimPrefix(path, prefix)
	default:
		return ""
	}
	rest = strings.Trim(rest, "/")
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		return rest[i+1:]
	}
	return rest
}
