// Package events provides the injectable observability sink for operation,
// webhook, tunnel and authorization lifecycle events.
//
// Components take an *Emitter, which renders a human-readable message for
// each EventReason and hands the Event to a Sink:
//
//	emitter := events.NewEmitter(events.LogSink{})
//	emitter.Emit(events.ReasonOperationCompleted, events.EventData{
//		Subject:  "op_42",
//		TaskKind: "create_media_buy",
//	})
//
// Sinks:
//
//   - LogSink: writes through pkg/logging (warnings at WARN, the rest at DEBUG)
//   - NopSink: discards events
//   - Recorder: keeps events in memory
//   - SinkFunc: adapts a function
package events
