package delivery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateID indicates a Register call for a request id that is
	// already live. Transport request ids are unique per in-flight
	// message, so this is a programming error on the caller's side.
	ErrDuplicateID = errors.New("duplicate message id")
	// ErrNotFound indicates a Resolve or Take for an id the registry
	// does not hold (already consumed or past retention).
	ErrNotFound = errors.New("message id not tracked")
)

// DefaultRetention bounds how long resolved entries that were never
// taken stay in memory.
const DefaultRetention = 10 * time.Minute

// PendingMessage is one in-flight (or recently resolved) message.
// Owned exclusively by the Registry; methods hand out copies.
type PendingMessage struct {
	ID         uint32
	NodeName   string
	SentAt     time.Time
	SNRAtSend  float64
	HasSendSNR bool
	State      State
	AckedAt    time.Time
	AckSNR     float64
	HasAckSNR  bool
	NakReason  string
	RetryCount int

	resolvedAt time.Time
}

// Registry is the thread-safe store of in-flight messages. One writer
// on the host loop and one on the transport callback goroutine may
// call into it concurrently; every method is a single critical
// section and never blocks on I/O.
type Registry struct {
	mu        sync.Mutex
	entries   map[uint32]*PendingMessage
	retention time.Duration
}

// NewRegistry creates an empty registry. A non-positive retention
// falls back to DefaultRetention.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		entries:   make(map[uint32]*PendingMessage),
		retention: retention,
	}
}

// Register tracks a freshly sent message in state Sent.
func (r *Registry) Register(id uint32, nodeName string, sentAt time.Time, snrAtSend float64, hasSNR bool) error {
	return r.register(id, nodeName, sentAt, snrAtSend, hasSNR, 0)
}

// RegisterRetry tracks the resend of a timed-out message under its new
// transport-assigned id, carrying the retry count forward.
func (r *Registry) RegisterRetry(id uint32, nodeName string, sentAt time.Time, snrAtSend float64, hasSNR bool, retryCount int) error {
	return r.register(id, nodeName, sentAt, snrAtSend, hasSNR, retryCount)
}

func (r *Registry) register(id uint32, nodeName string, sentAt time.Time, snrAtSend float64, hasSNR bool, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[id]; ok && existing.State.Live() {
		return fmt.Errorf("%w: %d (state %s)", ErrDuplicateID, id, existing.State)
	}

	r.entries[id] = &PendingMessage{
		ID:         id,
		NodeName:   nodeName,
		SentAt:     sentAt,
		SNRAtSend:  snrAtSend,
		HasSendSNR: hasSNR,
		State:      StateSent,
		RetryCount: retryCount,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Register",
		"message_id": id,
		"node":       nodeName,
		"sent_at":    sentAt,
		"retry":      retryCount,
		"state":      StateSent.String(),
	}).Info("Message registered")

	return nil
}

// Resolve applies a terminal-bound transition to a live entry. The
// second return is true when the transition was applied; false with a
// nil error means the entry had already been resolved, which is
// expected under mesh retransmission and must not be treated as an
// error by callers.
func (r *Registry) Resolve(id uint32, outcome State, at time.Time, snr float64, hasSNR bool, reason string) (PendingMessage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return PendingMessage{}, false, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	if !entry.State.Live() {
		logrus.WithFields(logrus.Fields{
			"function":   "Resolve",
			"message_id": id,
			"node":       entry.NodeName,
			"state":      entry.State.String(),
			"discarded":  outcome.String(),
		}).Info("Duplicate or late event discarded")
		return *entry, false, nil
	}

	// ImplicitAck is a refinement of Sent, not an outcome; re-applying
	// it is harmless but re-entering Sent is not a transition at all.
	if outcome == StateSent {
		return *entry, false, nil
	}

	prev := entry.State
	entry.State = outcome
	if outcome.Terminal() {
		entry.resolvedAt = at
	}
	if outcome == StateRealAck {
		entry.AckedAt = at
		entry.AckSNR = snr
		entry.HasAckSNR = hasSNR
	}
	if outcome == StateNak {
		entry.AckedAt = at
		entry.NakReason = reason
	}
	if outcome == StateTimedOut {
		entry.NakReason = reason
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Resolve",
		"message_id": id,
		"node":       entry.NodeName,
		"from_state": prev.String(),
		"to_state":   outcome.String(),
		"at":         at,
		"snr":        snr,
		"has_snr":    hasSNR,
		"reason":     reason,
	}).Info("Message state transition")

	return *entry, true, nil
}

// MarkConfirmationSent moves a RealAck entry to ConfirmationSent after
// the deferred confirmation reply has gone out.
func (r *Registry) MarkConfirmationSent(id uint32, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.State != StateRealAck {
		return false
	}
	entry.State = StateConfirmationSent
	entry.resolvedAt = at

	logrus.WithFields(logrus.Fields{
		"function":   "MarkConfirmationSent",
		"message_id": id,
		"node":       entry.NodeName,
		"to_state":   StateConfirmationSent.String(),
	}).Info("Message state transition")

	return true
}

// SweepExpired atomically times out every live entry older than
// timeout and returns copies of the newly timed-out entries. It also
// prunes resolved entries past the retention window so the registry
// stays bounded even when outcomes are never taken.
func (r *Registry) SweepExpired(now time.Time, timeout time.Duration) []PendingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []PendingMessage
	for id, entry := range r.entries {
		if entry.State.Live() && now.Sub(entry.SentAt) >= timeout {
			prev := entry.State
			entry.State = StateTimedOut
			entry.NakReason = "ack timeout"
			entry.resolvedAt = now
			expired = append(expired, *entry)

			logrus.WithFields(logrus.Fields{
				"function":   "SweepExpired",
				"message_id": id,
				"node":       entry.NodeName,
				"from_state": prev.String(),
				"to_state":   StateTimedOut.String(),
				"sent_at":    entry.SentAt,
				"now":        now,
			}).Info("Message state transition")
			continue
		}

		if entry.State.Terminal() && !entry.resolvedAt.IsZero() && now.Sub(entry.resolvedAt) >= r.retention {
			delete(r.entries, id)
		}
	}

	return expired
}

// Get returns a copy of a tracked message without consuming it.
func (r *Registry) Get(id uint32) (PendingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return PendingMessage{}, false
	}
	return *entry, true
}

// Take removes and returns a tracked message, giving the caller
// at-most-once consumption of its outcome.
func (r *Registry) Take(id uint32) (PendingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return PendingMessage{}, false
	}
	delete(r.entries, id)
	return *entry, true
}

// Len returns the number of tracked entries, live and resolved.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
