package endpoint

// State is the operating state of a Machine.
type State uint32

// Machine states.
const (
	// StateIdle is the rest state between exchanges.
	StateIdle State = iota
	// StateAwaitingHeader means reception is armed for the next header.
	StateAwaitingHeader
	// StateForwarding is entered while a packet for another device is
	// passed downlink.
	StateForwarding
	// StateAwaitingBody follows an accepted READ or WRITE for this device.
	StateAwaitingBody
	// StateAwaitingSensorData is entered for a Sensors body. Sensor
	// acquisition is reserved and completes without data.
	StateAwaitingSensorData
	// StateExecuting is entered for EXEC and Code bodies. Execution is
	// reserved and has no side effects.
	StateExecuting
	// StateRelaying means a READ or WRITE for another device is in flight
	// through this device.
	StateRelaying
)

// IsRest reports whether s waits for a new exchange.
func (s State) IsRest() bool {
	return s == StateIdle || s == StateAwaitingHeader
}

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingHeader:
		return "awaiting-header"
	case StateForwarding:
		return "forwarding"
	case StateAwaitingBody:
		return "awaiting-body"
	case StateAwaitingSensorData:
		return "awaiting-sensor-data"
	case StateExecuting:
		return "executing"
	case StateRelaying:
		return "relaying"
	default:
		return "unknown"
	}
}

// StateChangeHandler is invoked synchronously on every state transition.
type StateChangeHandler func(prev State, next State)

// relayPhase tracks the progress of an exchange passing through the device.
type relayPhase uint8

const (
	// relayAwaitAck waits for the addressed device to ACK on the downlink.
	relayAwaitAck relayPhase = iota
	// relayAwaitBody waits for the host's Body on the uplink.
	relayAwaitBody
	// relayAwaitReply waits for the READ reply Body on the downlink.
	relayAwaitReply
)

func (p relayPhase) String() string {
	switch p {
	case relayAwaitAck:
		return "await-ack"
	case relayAwaitBody:
		return "await-body"
	case relayAwaitReply:
		return "await-reply"
	default:
		return "unknown"
	}
}
