package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are organized by runID for retrieval and filtering. Safe for
// concurrent use.
//
// Warning: every event is retained until Clear is called.
//
//	emitter := emit.NewBufferedEmitter()
//	coord, _ := workflow.New(reg, inv, workflow.WithEmitter(emitter))
//	out, _ := coord.Run(ctx, "Build a Fibonacci generator")
//
//	retries := emitter.GetHistoryWithFilter(out.RunID, emit.HistoryFilter{Msg: emit.MsgReviewRetry})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter specifies criteria for filtering run history.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	Role   string // Filter by role name (empty = no filter)
	Msg    string // Filter by event name (empty = no filter)
	MinSeq *int   // Minimum conversation length (nil = no filter)
	MaxSeq *int   // Maximum conversation length (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory returns a copy of all events for runID in emission order.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter returns the events for runID matching filter.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

// RunIDs returns the IDs of every run with buffered events.
func (b *BufferedEmitter) RunIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.events))
	for id := range b.events {
		ids = append(ids, id)
	}
	return ids
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.Role != "" && event.Role != filter.Role {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinSeq != nil && event.Seq < *filter.MinSeq {
		return false
	}
	if filter.MaxSeq != nil && event.Seq > *filter.MaxSeq {
		return false
	}
	return true
}

// Clear removes stored events for runID, or every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
