package events

// Event represents a structured state change emitted by a contract engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// It is the default for engines whose callers do not subscribe.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until they are flushed to another emitter. The
// group processor uses it so that events from a rejected group are never
// observed.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface by recording the event.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// FlushTo forwards every buffered event to dst in emission order and clears
// the buffer.
func (b *Buffer) FlushTo(dst Emitter) {
	if dst == nil {
		b.events = nil
		return
	}
	for _, evt := range b.events {
		dst.Emit(evt)
	}
	b.events = nil
}

// Reset drops all buffered events.
func (b *Buffer) Reset() {
	b.events = nil
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.events)
}
