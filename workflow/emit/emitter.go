// Package emit provides event emission for workflow observability.
package emit

// Emitter receives observability events from a workflow run.
//
// Implementations must not block the run for long and must not panic.
// The coordinator calls Emit from the goroutine driving the run.
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// Multi fans events out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
