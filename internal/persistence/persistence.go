package persistence

// Persistence bundles the store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Workflows WorkflowStore
	Outcomes  OutcomeStore
	Events    EventStore
}

// Backend is a store that keeps definitions, outcomes and history together.
type Backend interface {
	WorkflowStore
	OutcomeStore
	EventStore
}

// Of uses b for every store.
func Of(b Backend) Persistence {
	return Persistence{Workflows: b, Outcomes: b, Events: b}
}

// NewInMemory returns a Persistence whose stores all live in process memory.
func NewInMemory() Persistence {
	return Of(NewInMemoryStore())
}
