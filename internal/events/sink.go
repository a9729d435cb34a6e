package events

import (
	"sync"
	"time"

	"agenthook/pkg/logging"
)

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use and must not block for long.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(event).
func (f SinkFunc) Emit(event Event) { f(event) }

// NopSink discards every event.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// LogSink writes events through pkg/logging.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(event Event) {
	if event.Type == EventTypeWarning {
		logging.Warn("Events", "[%s] %s", event.Reason, event.Message)
		return
	}
	logging.Debug("Events", "[%s] %s", event.Reason, event.Message)
}

// Recorder keeps every event in memory. Useful in tests and for the
// `serve` command's summary output.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reasons returns the reasons of the recorded events in order.
func (r *Recorder) Reasons() []EventReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventReason, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Reason)
	}
	return out
}

// Emitter renders messages for reasons and forwards them to a Sink.
// A nil *Emitter is valid and drops everything.
type Emitter struct {
	sink      Sink
	templates *MessageTemplateEngine
}

// NewEmitter creates an Emitter. A nil sink means NopSink.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{
		sink:      sink,
		templates: NewMessageTemplateEngine(),
	}
}

// Emit renders and delivers an event.
func (e *Emitter) Emit(reason EventReason, data EventData) {
	if e == nil {
		return
	}
	e.sink.Emit(Event{
		Type:    getEventType(reason),
		Reason:  reason,
		Message: e.templates.Render(reason, data),
		Data:    data,
		Time:    time.Now(),
	})
}
