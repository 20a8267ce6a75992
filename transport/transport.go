// Package transport defines the radio transport consumed by the
// delivery engine and the concrete implementations shipped with it: a
// UDP client for the serial radio gateway daemon, and an in-memory
// mock for tests.
//
// The transport model is asynchronous: SendText hands a message to the
// radio and returns the transport-assigned request id immediately.
// Whether the message ever reached the destination is reported later,
// possibly more than once, through the registered delivery handler.
package transport

import (
	"errors"
	"time"

	"github.com/wsmesh/wsmesh/pki"
)

// ErrSendFailed indicates the transport could not hand the message to
// the radio at all (link down, gateway unreachable).
var ErrSendFailed = errors.New("transport send failed")

// DeliveryEvent is one asynchronous delivery report from the radio.
// The same request id may be reported multiple times under mesh
// retransmission; consumers must treat events as idempotent.
type DeliveryEvent struct {
	RequestID  uint32
	FromNodeID uint32 // node reporting the event; equal to the local id for implicit acks
	Code       RoutingCode
	SNR        float64
	HasSNR     bool
	At         time.Time
}

// DeliveryHandler consumes delivery events. It is invoked from the
// transport's own goroutine, possibly concurrently with the host loop.
type DeliveryHandler func(ev DeliveryEvent)

// Transport is the send capability the delivery engine consumes.
type Transport interface {
	// SendText transmits a text payload to a destination node and
	// returns the transport-assigned request id for the send.
	SendText(dest uint32, payload string, channel uint8, mode pki.Mode) (uint32, error)

	// RegisterDeliveryHandler installs the handler for asynchronous
	// delivery events. Only one handler is supported; a second call
	// replaces the first.
	RegisterDeliveryHandler(h DeliveryHandler)

	// LocalNodeID returns the connected radio's own node id, or zero
	// if it is not yet known.
	LocalNodeID() uint32

	// Close releases the transport. Pending delivery events are lost.
	Close() error
}
