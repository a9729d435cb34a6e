package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agenthook/internal/completion"
	"agenthook/pkg/task"
)

// DefaultMaxClarificationRounds caps input-required exchanges per operation.
const DefaultMaxClarificationRounds = 3

// Operation is one logical remote call awaiting completion.
type Operation struct {
	ID        string
	TaskKind  task.Kind
	AgentID   string
	CreatedAt time.Time
	Deadline  time.Time

	// MaxClarificationRounds bounds NextClarification. Zero means
	// DefaultMaxClarificationRounds.
	MaxClarificationRounds int

	future *completion.Future[*CallbackPayload]

	mu                  sync.Mutex
	status              task.Status
	clarificationRounds int
}

// NewOperation creates an operation that must settle within timeout.
func NewOperation(id string, kind task.Kind, agentID string, timeout time.Duration) *Operation {
	now := time.Now()
	return &Operation{
		ID:        id,
		TaskKind:  kind,
		AgentID:   agentID,
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		status:    task.StatusSubmitted,
		future:    completion.NewFuture[*CallbackPayload](),
	}
}

// Status returns the last recorded status.
func (o *Operation) Status() task.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SetStatus records a status reported for the operation.
func (o *Operation) SetStatus(s task.Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

// Future returns the operation's single-fire completion.
func (o *Operation) Future() *completion.Future[*CallbackPayload] {
	return o.future
}

// Resolve settles the operation with p. Only the first settlement counts.
func (o *Operation) Resolve(p *CallbackPayload) bool {
	won := o.future.Resolve(p)
	if won && p != nil {
		o.SetStatus(p.Status)
	}
	return won
}

// Reject settles the operation with err.
func (o *Operation) Reject(err error) bool {
	return o.future.Reject(err)
}

// Remaining returns the time left until the deadline, never negative.
func (o *Operation) Remaining() time.Duration {
	d := time.Until(o.Deadline)
	if d < 0 {
		return 0
	}
	return d
}

// Wait blocks until the operation settles, its deadline passes or ctx is done.
func (o *Operation) Wait(ctx context.Context) (*CallbackPayload, error) {
	ctx, cancel := context.WithDeadline(ctx, o.Deadline)
	defer cancel()

	select {
	case <-o.future.Done():
		return o.future.Result()
	case <-ctx.Done():
		if o.future.Settled() {
			return o.future.Result()
		}
		if time.Now().Before(o.Deadline) {
			return nil, ctx.Err()
		}
		err := &completion.TimeoutError{
			Timeout: o.Deadline.Sub(o.CreatedAt),
			Subject: fmt.Sprintf("operation %s", o.ID),
		}
		o.future.Reject(err)
		return o.future.Result()
	}
}

// NextClarification counts one more input-required round. It fails once
// the cap is reached so a misbehaving agent cannot loop forever.
func (o *Operation) NextClarification() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	limit := o.MaxClarificationRounds
	if limit <= 0 {
		limit = DefaultMaxClarificationRounds
	}
	if o.clarificationRounds >= limit {
		return o.clarificationRounds, fmt.Errorf("%w: operation %s asked for input %d times", ErrClarificationLimit, o.ID, o.clarificationRounds)
	}
	o.clarificationRounds++
	o.status = task.StatusInputRequired
	return o.clarificationRounds, nil
}

// ClarificationRounds returns how many input-required rounds have happened.
func (o *Operation) ClarificationRounds() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clarificationRounds
}
