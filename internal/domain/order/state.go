package order

// State is the lifecycle state of an order.
type State string

const (
	StatePending  State = "Pending"
	StateAccepted State = "Accepted"
	StateRejected State = "Rejected"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateAccepted, StateRejected:
		return true
	default:
		return false
	}
}
