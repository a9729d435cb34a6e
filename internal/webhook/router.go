package webhook

import (
	"context"
	"fmt"
	"sync"

	"agenthook/internal/events"
	"agenthook/pkg/logging"
	"agenthook/pkg/task"
)

const subsystem = "Webhook"

// Handler processes a status-change callback for a task kind.
type Handler interface {
	HandleStatus(ctx context.Context, p *CallbackPayload) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, p *CallbackPayload) error

// HandleStatus calls f.
func (f HandlerFunc) HandleStatus(ctx context.Context, p *CallbackPayload) error {
	return f(ctx, p)
}

// NotificationHandler processes periodic report notifications.
type NotificationHandler func(ctx context.Context, n *NotificationPayload) error

// Router dispatches parsed deliveries to application handlers by task kind.
// Handler failures and panics are contained: they are logged and reported
// to the event sink, never returned to the sender.
type Router struct {
	mu           sync.RWMutex
	handlers     map[task.Kind]Handler
	fallback     Handler
	notification NotificationHandler

	unhandled *logging.OnceSet
	events    *events.Emitter
}

// NewRouter creates an empty router. emitter may be nil.
func NewRouter(emitter *events.Emitter) *Router {
	return &Router{
		handlers:  make(map[task.Kind]Handler),
		unhandled: logging.NewOnceSet(),
		events:    emitter,
	}
}

// Register installs h for a task kind, replacing any previous handler.
func (r *Router) Register(kind task.Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// RegisterFunc installs a handler that receives the callback result decoded
// into T. Callbacks without a result, such as failures, are delivered with
// the zero value of T.
func RegisterFunc[T any](r *Router, kind task.Kind, fn func(ctx context.Context, p *CallbackPayload, result T) error) {
	r.Register(kind, HandlerFunc(func(ctx context.Context, p *CallbackPayload) error {
		var result T
		if len(p.Result) > 0 && string(p.Result) != "null" {
			if err := p.DecodeResult(&result); err != nil {
				return fmt.Errorf("decoding %s result: %w", kind, err)
			}
		}
		return fn(ctx, p, result)
	}))
}

// SetFallback installs the handler used for kinds with no registered handler.
func (r *Router) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// SetNotificationHandler installs the handler for report notifications.
func (r *Router) SetNotificationHandler(h NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notification = h
}

// Kinds returns the task kinds with a registered handler.
func (r *Router) Kinds() []task.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]task.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch routes d to its handler. The returned error is a *HandlerError
// for callers that want to inspect it; it has already been logged.
func (r *Router) Dispatch(ctx context.Context, d Delivery) error {
	if r == nil {
		return nil
	}

	switch d.Kind {
	case DeliveryNotification:
		r.mu.RLock()
		h := r.notification
		r.mu.RUnlock()

		r.events.Emit(events.ReasonNotificationReceived, events.EventData{
			Subject:  d.Notification.OperationID,
			TaskKind: string(d.Notification.TaskKind),
			Status:   string(d.Notification.NotificationType),
		})
		if h == nil {
			r.unhandled.WarnOnce("notification:"+string(d.Notification.TaskKind), subsystem,
				"No notification handler registered; dropping %s notifications", d.Notification.TaskKind)
			return nil
		}
		return r.invoke(d.Notification.TaskKind, d.Notification.OperationID, func() error {
			return h(ctx, d.Notification)
		})

	default:
		r.mu.RLock()
		h, ok := r.handlers[d.Status.TaskKind]
		if !ok {
			h = r.fallback
		}
		r.mu.RUnlock()

		if h == nil {
			r.unhandled.WarnOnce("status:"+string(d.Status.TaskKind), subsystem,
				"No handler registered for task kind %q", d.Status.TaskKind)
			return nil
		}
		return r.invoke(d.Status.TaskKind, d.Status.OperationID, func() error {
			return h.HandleStatus(ctx, d.Status)
		})
	}
}

func (r *Router) invoke(kind task.Kind, operationID string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			herr := &HandlerError{TaskKind: string(kind), OperationID: operationID, Err: err}
			logging.Error(subsystem, err, "Handler for %s failed (operation %s)", kind, operationID)
			r.events.Emit(events.ReasonHandlerFailed, events.EventData{
				Subject:  operationID,
				TaskKind: string(kind),
				Error:    err.Error(),
			})
			err = herr
		}
	}()
	return fn()
}
