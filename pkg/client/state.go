package client

// State is the registration state of the client.
type State uint8

const (
	// StateUnregistered is the initial state and the terminal state of a run.
	StateUnregistered State = iota

	// StateRegistering indicates registration was initiated.
	StateRegistering

	// StateRegistered indicates the service accepted the registration.
	StateRegistered

	// StateUnregisteredAfterError indicates a protocol error ended the
	// registration. The transport does not retry.
	StateUnregisteredAfterError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegistering:
		return "REGISTERING"
	case StateRegistered:
		return "REGISTERED"
	case StateUnregisteredAfterError:
		return "UNREGISTERED_AFTER_ERROR"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether from -> to is a lifecycle edge.
// Every state may return to StateUnregistered.
func CanTransition(from, to State) bool {
	switch to {
	case StateUnregistered:
		return true
	case StateRegistering:
		return from == StateUnregistered
	case StateRegistered:
		return from == StateRegistering
	case StateUnregisteredAfterError:
		return from == StateRegistering || from == StateRegistered
	default:
		return false
	}
}
