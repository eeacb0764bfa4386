package schema

// TurnEventType discriminates the events emitted while a turn runs.
type TurnEventType string

const (
	// EventBudget carries the Budget snapshot, emitted once at turn start.
	EventBudget TurnEventType = "budget"
	// EventAssembly carries the AssemblyResult, emitted once at turn start.
	EventAssembly TurnEventType = "assembly"
	// EventMemory carries a MemorySnapshot, emitted at turn start and again
	// after any post-turn promotion completes.
	EventMemory TurnEventType = "memory"
	// EventDelta carries one streamed content fragment.
	EventDelta TurnEventType = "delta"
	// EventDone terminates the stream with a final status.
	EventDone TurnEventType = "done"
)

// TurnStatus is the terminal state of a turn. Cancelled is a first-class
// outcome, not an error.
type TurnStatus string

const (
	StatusCompleted TurnStatus = "completed"
	StatusCancelled TurnStatus = "cancelled"
	StatusError     TurnStatus = "error"
)

// TurnEvent is one event on a turn's stream. Exactly one payload field is
// set, matching Type.
type TurnEvent struct {
	Type     TurnEventType   `json:"type"`
	Budget   *Budget         `json:"budget,omitempty"`
	Assembly *AssemblyResult `json:"assembly,omitempty"`
	Memory   *MemorySnapshot `json:"memory,omitempty"`
	Delta    string          `json:"delta,omitempty"`
	Status   TurnStatus      `json:"status,omitempty"`
	Usage    *Usage          `json:"usage,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// DoneEvent builds a terminal event.
func DoneEvent(status TurnStatus, usage *Usage, errMsg string) TurnEvent {
	return TurnEvent{Type: EventDone, Status: status, Usage: usage, Err: errMsg}
}
