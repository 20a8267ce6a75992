package delivery

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wsmesh/wsmesh/transport"
)

// SampleRecorder receives the SNR sample of every real acknowledgment.
// Satisfied by snrstats.Store.
type SampleRecorder interface {
	RecordSample(nodeName string, snr float64, observedAt time.Time)
}

// AckHandler consumes delivery events from the transport callback
// context and resolves registry entries. All errors are absorbed here:
// the callback context has no caller to report to.
type AckHandler struct {
	registry      *Registry
	stats         SampleRecorder
	confirmations *ConfirmationScheduler

	// LocalID returns the radio's own node id; an event reported by it
	// only confirms local enqueue, never remote receipt.
	localID func() uint32

	confirmationDelay time.Duration

	// onResolved, when set, is invoked with a copy of every entry this
	// handler resolves, still on the callback goroutine.
	onResolved func(PendingMessage)
}

// NewAckHandler wires the handler to its collaborators. stats and
// confirmations may be nil; resolved acks are then not accumulated or
// confirmed.
func NewAckHandler(registry *Registry, stats SampleRecorder, confirmations *ConfirmationScheduler, localID func() uint32, confirmationDelay time.Duration) *AckHandler {
	return &AckHandler{
		registry:          registry,
		stats:             stats,
		confirmations:     confirmations,
		localID:           localID,
		confirmationDelay: confirmationDelay,
	}
}

// OnResolved installs a hook called for every resolution this handler
// applies.
func (h *AckHandler) OnResolved(fn func(PendingMessage)) {
	h.onResolved = fn
}

// HandleDeliveryEvent implements the transport's delivery callback. It
// may be called any number of times per request id; only the first
// terminal resolution is applied.
func (h *AckHandler) HandleDeliveryEvent(ev transport.DeliveryEvent) {
	logrus.WithFields(logrus.Fields{
		"function":   "HandleDeliveryEvent",
		"message_id": ev.RequestID,
		"from":       ev.FromNodeID,
		"code":       ev.Code.String(),
		"snr":        ev.SNR,
		"has_snr":    ev.HasSNR,
		"at":         ev.At,
	}).Debug("Delivery event received")

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch {
	case ev.Code.IsFailure():
		h.resolveNak(ev, at)
	case ev.FromNodeID == h.localID():
		h.resolveImplicit(ev, at)
	default:
		h.resolveReal(ev, at)
	}
}

func (h *AckHandler) resolveNak(ev transport.DeliveryEvent, at time.Time) {
	entry, applied, err := h.registry.Resolve(ev.RequestID, StateNak, at, 0, false, ev.Code.String())
	if err != nil {
		h.logNotTracked(ev)
		return
	}
	if applied && h.onResolved != nil {
		h.onResolved(entry)
	}
}

// resolveImplicit records that our own radio queued the message. This
// is not delivery confirmation: no SNR sample, no confirmation reply.
func (h *AckHandler) resolveImplicit(ev transport.DeliveryEvent, at time.Time) {
	entry, applied, err := h.registry.Resolve(ev.RequestID, StateImplicitAck, at, 0, false, "")
	if err != nil {
		h.logNotTracked(ev)
		return
	}
	if applied && h.onResolved != nil {
		h.onResolved(entry)
	}
}

func (h *AckHandler) resolveReal(ev transport.DeliveryEvent, at time.Time) {
	snr := ev.SNR
	hasSNR := ev.HasSNR

	entry, applied, err := h.registry.Resolve(ev.RequestID, StateRealAck, at, snr, hasSNR, "")
	if err != nil {
		h.logNotTracked(ev)
		return
	}
	if !applied {
		return
	}

	// Fall back to the SNR observed at send time when the ack carried
	// none, so the sample is not lost entirely.
	if !hasSNR && entry.HasSendSNR {
		snr = entry.SNRAtSend
		hasSNR = true
		entry.AckSNR = snr
		entry.HasAckSNR = true
	}

	if hasSNR && h.stats != nil {
		h.stats.RecordSample(entry.NodeName, snr, at)
	}

	if h.confirmations != nil {
		h.confirmations.Schedule(Confirmation{
			MessageID: entry.ID,
			NodeName:  entry.NodeName,
			AckedAt:   at,
			SNR:       snr,
			HasSNR:    hasSNR,
		}, h.confirmationDelay)
	}

	if h.onResolved != nil {
		h.onResolved(entry)
	}
}

func (h *AckHandler) logNotTracked(ev transport.DeliveryEvent) {
	logrus.WithFields(logrus.Fields{
		"function":   "HandleDeliveryEvent",
		"message_id": ev.RequestID,
		"from":       ev.FromNodeID,
		"code":       ev.Code.String(),
	}).Info("NOT_TRACKED: event for unknown message id")
}
