package delivery

import "fmt"

// State represents the delivery state of a pending message.
type State uint8

const (
	// StateSent means the message was handed to the radio and no
	// delivery report has arrived yet.
	StateSent State = iota
	// StateImplicitAck means the local radio reported it queued the
	// message. This is not delivery confirmation: the reporting node
	// was ourselves.
	StateImplicitAck
	// StateRealAck means a remote node confirmed receipt.
	StateRealAck
	// StateNak means the mesh reported a delivery failure.
	StateNak
	// StateTimedOut means no report arrived within the ack timeout.
	StateTimedOut
	// StateConfirmationSent means the deferred confirmation reply for
	// a real ack has gone out.
	StateConfirmationSent
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSent:
		return "Sent"
	case StateImplicitAck:
		return "ImplicitAck"
	case StateRealAck:
		return "RealAck"
	case StateNak:
		return "Nak"
	case StateTimedOut:
		return "TimedOut"
	case StateConfirmationSent:
		return "ConfirmationSent"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Live reports whether a delivery event may still resolve the state.
func (s State) Live() bool {
	return s == StateSent || s == StateImplicitAck
}

// Terminal reports whether the state is a final outcome. Terminal
// states are never re-entered.
func (s State) Terminal() bool {
	return s == StateRealAck || s == StateNak || s == StateTimedOut || s == StateConfirmationSent
}
