package pairing

// EventKind identifies an outbound event emitted to a connection.
type EventKind uint8

const (
	EventPairingPending EventKind = iota + 1
	EventPairingEstablished
	EventPartnerDescriptor
	EventPartnerLeft
	EventRelayed
)

func (k EventKind) String() string {
	switch k {
	case EventPairingPending:
		return "pairing-pending"
	case EventPairingEstablished:
		return "pairing-established"
	case EventPartnerDescriptor:
		return "partner-descriptor"
	case EventPartnerLeft:
		return "partner-left"
	case EventRelayed:
		return "relayed"
	default:
		return "unknown"
	}
}

// Payload is an opaque message relayed between partners. Binary records the
// transport frame kind so it can be reproduced on the other side.
type Payload struct {
	Data   []byte
	Binary bool
}

type Event struct {
	Kind EventKind
	// Tag is the partner's compatibility tag (EventPartnerDescriptor).
	Tag string
	// Payload is set for EventRelayed.
	Payload Payload
}

// Sink receives events for one connection.
//
// Deliver is called with the service lock held and must not block. It reports
// false when the connection can no longer accept events (closed or its queue
// is full); the event is then dropped.
type Sink interface {
	Deliver(ev Event) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event) bool

func (f SinkFunc) Deliver(ev Event) bool { return f(ev) }
