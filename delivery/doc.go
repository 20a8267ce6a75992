// Package delivery implements the message delivery acknowledgment and
// retry engine: the pending-message registry and its state machine,
// the handler for asynchronous delivery events from the radio, the
// timeout sweeper driven by the host loop, and the deferred
// confirmation scheduler.
//
// Two execution contexts touch this package: the host's cooperative
// loop (register, sweep, take) and the transport's callback goroutine
// (resolve). The registry serializes them with a single mutex and
// guarantees that for any message id at most one transition out of a
// live state into a terminal outcome is ever observed; the loser of a
// resolve/sweep race sees "already resolved" and does nothing.
package delivery
