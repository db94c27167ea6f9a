package protection

// State is the persistence lifecycle of a protection or role.
type State int

// Lifecycle states. StateRemoved is terminal.
const (
	StateNew State = iota
	StateUnmodified
	StateModified
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateUnmodified:
		return "unmodified"
	case StateModified:
		return "modified"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// SaveNeeded reports whether an entity in state s has unpersisted changes.
func (s State) SaveNeeded() bool { return s == StateNew || s == StateModified }

// touched returns the state after a mutation.
func (s State) touched() State {
	if s == StateUnmodified {
		return StateModified
	}
	return s
}

// settled returns the state after a successful write. mutated reports
// whether the entity changed while the write was in flight.
func (s State) settled(mutated bool) State {
	switch {
	case s == StateRemoved:
		return s
	case mutated:
		return StateModified
	default:
		return StateUnmodified
	}
}
