package wsmesh

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wsmesh/wsmesh/delivery"
	"github.com/wsmesh/wsmesh/nodes"
	"github.com/wsmesh/wsmesh/pki"
	"github.com/wsmesh/wsmesh/report"
	"github.com/wsmesh/wsmesh/snrstats"
	"github.com/wsmesh/wsmesh/telemetry"
	"github.com/wsmesh/wsmesh/transport"
)

// Options configures a Station.
type Options struct {
	// Directory is the node directory. Required.
	Directory *nodes.Directory
	// Transport is the radio send capability. Required.
	Transport transport.Transport
	// Stats accumulates per-node SNR statistics. Required.
	Stats *snrstats.Store

	// DeliveryLog, when set, records every resolved outcome.
	DeliveryLog *report.DeliveryLog

	// AckRetryTimeout is how long a send may stay unresolved before
	// the sweeper times it out. Default 60s.
	AckRetryTimeout time.Duration
	// MaxRetries bounds resends per logical message. Default 1.
	MaxRetries int
	// ConfirmationDelay is the pause between a real ack and the
	// confirmation reply. Default 5s.
	ConfirmationDelay time.Duration
	// Retention bounds how long resolved-but-unconsumed entries stay
	// in the registry.
	Retention time.Duration
	// Channel is the radio channel index for all sends.
	Channel uint8
}

// DeliveredCallback fires when a remote node confirms receipt.
type DeliveredCallback func(nodeName string, snr float64, hasSNR bool)

// DeliveryFailedCallback fires when a message is given up on: a NAK,
// or a timeout past the retry budget.
type DeliveryFailedCallback func(nodeName string, reason string)

// MessageStatus is the status surface for the most recent message to
// a node, for rendering by the presentation layer.
type MessageStatus struct {
	MessageID  uint32
	SentAt     time.Time
	AckedAt    time.Time
	HasAckedAt bool
	SNR        float64
	HasSNR     bool
	Outcome    delivery.State
	Retries    int
}

// Station is the delivery engine facade. One instance owns the
// registry, sweeper, confirmation scheduler and statistics store; the
// host calls Send and Iterate from its single cooperative loop.
type Station struct {
	opts *Options

	directory *nodes.Directory
	transport transport.Transport
	stats     *snrstats.Store
	log       *report.DeliveryLog

	registry      *delivery.Registry
	ackHandler    *delivery.AckHandler
	sweeper       *delivery.Sweeper
	confirmations *delivery.ConfirmationScheduler

	statusMu   sync.Mutex
	lastStatus map[string]MessageStatus
	payloads   map[uint32]string

	callbackMu       sync.RWMutex
	onDelivered      DeliveredCallback
	onDeliveryFailed DeliveryFailedCallback
}

// New creates a Station and registers its delivery handler on the
// transport.
func New(opts *Options) (*Station, error) {
	if opts == nil {
		return nil, errors.New("nil options")
	}
	if opts.Directory == nil {
		return nil, errors.New("options: Directory is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("options: Transport is required")
	}
	if opts.Stats == nil {
		return nil, errors.New("options: Stats is required")
	}
	if opts.AckRetryTimeout <= 0 {
		opts.AckRetryTimeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ConfirmationDelay <= 0 {
		opts.ConfirmationDelay = 5 * time.Second
	}

	s := &Station{
		opts:          opts,
		directory:     opts.Directory,
		transport:     opts.Transport,
		stats:         opts.Stats,
		log:           opts.DeliveryLog,
		registry:      delivery.NewRegistry(opts.Retention),
		confirmations: delivery.NewConfirmationScheduler(),
		lastStatus:    make(map[string]MessageStatus),
		payloads:      make(map[uint32]string),
	}
	s.sweeper = delivery.NewSweeper(s.registry, opts.AckRetryTimeout, opts.MaxRetries)
	s.ackHandler = delivery.NewAckHandler(
		s.registry,
		s.stats,
		s.confirmations,
		s.transport.LocalNodeID,
		opts.ConfirmationDelay,
	)
	s.ackHandler.OnResolved(s.handleResolved)
	s.transport.RegisterDeliveryHandler(s.ackHandler.HandleDeliveryEvent)

	if err := s.stats.Load(); err != nil {
		// In-memory state stays authoritative; never fatal.
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err,
		}).Error("Failed to load SNR statistics")
	}

	logrus.WithFields(logrus.Fields{
		"function":    "New",
		"nodes":       s.directory.Len(),
		"ack_timeout": opts.AckRetryTimeout,
		"max_retries": opts.MaxRetries,
	}).Info("Station created")

	return s, nil
}

// OnDelivered registers the real-ack callback. It fires on the
// transport's callback goroutine.
func (s *Station) OnDelivered(cb DeliveredCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onDelivered = cb
}

// OnDeliveryFailed registers the failure callback. NAKs fire it on the
// transport goroutine, exhausted retries on the host loop.
func (s *Station) OnDeliveryFailed(cb DeliveryFailedCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onDeliveryFailed = cb
}

// Send transmits a payload to a named node and registers it for
// acknowledgment tracking. The returned id is the transport-assigned
// request id.
func (s *Station) Send(nodeName, payload string) (uint32, error) {
	node, err := s.directory.Resolve(nodeName)
	if err != nil {
		return 0, err
	}

	mode := pki.ModeForKey(node.PublicKey)
	snrAtSend, hasSNR := s.lastAckSNR(nodeName)

	id, err := s.transport.SendText(node.ID, payload, s.opts.Channel, mode)
	if err != nil {
		return 0, fmt.Errorf("send to %q: %w", nodeName, err)
	}

	now := time.Now()
	if err := s.registry.Register(id, nodeName, now, snrAtSend, hasSNR); err != nil {
		return id, err
	}
	telemetry.MessagesSent.WithLabelValues(nodeName).Inc()

	s.statusMu.Lock()
	s.lastStatus[nodeName] = MessageStatus{
		MessageID: id,
		SentAt:    now,
		Outcome:   delivery.StateSent,
	}
	s.payloads[id] = payload
	s.statusMu.Unlock()

	return id, nil
}

func (s *Station) storePayload(id uint32, payload string) {
	s.statusMu.Lock()
	s.payloads[id] = payload
	s.statusMu.Unlock()
}

func (s *Station) takePayload(id uint32) (string, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	payload, ok := s.payloads[id]
	if ok {
		delete(s.payloads, id)
	}
	return payload, ok
}

func (s *Station) dropPayload(id uint32) {
	s.statusMu.Lock()
	delete(s.payloads, id)
	s.statusMu.Unlock()
}

// Iterate performs one tick of the delivery engine: sweep timeouts,
// resend within the retry budget, report exhausted messages, and send
// due confirmations. Called once per host loop iteration.
func (s *Station) Iterate(now time.Time) {
	retries, failures := s.sweeper.Tick(now)
	for _, r := range retries {
		s.resend(r, now)
	}
	for _, f := range failures {
		s.reportFailure(f)
	}

	for _, c := range s.confirmations.PollDue(now) {
		s.sendConfirmation(c, now)
	}
}

func (s *Station) resend(r delivery.Retry, now time.Time) {
	// The timed-out entry is consumed; the resend lives under a new
	// transport-assigned id.
	s.registry.Take(r.MessageID)

	node, err := s.directory.Resolve(r.NodeName)
	if err != nil {
		s.reportFailure(delivery.Failure{
			MessageID:  r.MessageID,
			NodeName:   r.NodeName,
			Reason:     err.Error(),
			RetryCount: r.RetryCount - 1,
		})
		return
	}

	// A retry resends the original payload; the transport does not
	// keep it, so the engine does.
	payload, ok := s.takePayload(r.MessageID)
	if !ok {
		s.reportFailure(delivery.Failure{
			MessageID:  r.MessageID,
			NodeName:   r.NodeName,
			Reason:     "retry payload lost",
			RetryCount: r.RetryCount - 1,
		})
		return
	}

	mode := pki.ModeForKey(node.PublicKey)
	id, err := s.transport.SendText(node.ID, payload, s.opts.Channel, mode)
	if err != nil {
		// A failed resend consumed the retry attempt; report failure.
		s.reportFailure(delivery.Failure{
			MessageID:  r.MessageID,
			NodeName:   r.NodeName,
			Reason:     fmt.Sprintf("retry send failed: %v", err),
			RetryCount: r.RetryCount,
		})
		return
	}

	if err := s.registry.RegisterRetry(id, r.NodeName, now, r.SNRAtSend, r.HasSendSNR, r.RetryCount); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "resend",
			"message_id": id,
			"node":       r.NodeName,
			"error":      err,
		}).Error("Failed to register retry")
		return
	}
	s.storePayload(id, payload)
	telemetry.MessagesSent.WithLabelValues(r.NodeName).Inc()
	telemetry.Retries.Inc()

	s.statusMu.Lock()
	s.lastStatus[r.NodeName] = MessageStatus{
		MessageID: id,
		SentAt:    now,
		Outcome:   delivery.StateSent,
		Retries:   r.RetryCount,
	}
	s.statusMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "resend",
		"old_id":      r.MessageID,
		"message_id":  id,
		"node":        r.NodeName,
		"retry_count": r.RetryCount,
	}).Info("Timed-out message resent")
}

func (s *Station) reportFailure(f delivery.Failure) {
	entry, _ := s.registry.Take(f.MessageID)
	s.dropPayload(f.MessageID)

	telemetry.Outcomes.WithLabelValues(f.NodeName, delivery.StateTimedOut.String()).Inc()

	s.statusMu.Lock()
	status := s.lastStatus[f.NodeName]
	if status.MessageID == f.MessageID || status.MessageID == 0 {
		status.MessageID = f.MessageID
		status.Outcome = delivery.StateTimedOut
		status.Retries = f.RetryCount
		if !entry.SentAt.IsZero() {
			status.SentAt = entry.SentAt
		}
		s.lastStatus[f.NodeName] = status
	}
	s.statusMu.Unlock()

	if s.log != nil {
		s.log.Append(report.Entry{
			At:        time.Now(),
			NodeName:  f.NodeName,
			MessageID: f.MessageID,
			Outcome:   delivery.StateTimedOut.String(),
			Retries:   f.RetryCount,
		})
	}

	logrus.WithFields(logrus.Fields{
		"function":    "reportFailure",
		"message_id":  f.MessageID,
		"node":        f.NodeName,
		"reason":      f.Reason,
		"retry_count": f.RetryCount,
	}).Warn("Delivery failed")

	s.callbackMu.RLock()
	cb := s.onDeliveryFailed
	s.callbackMu.RUnlock()
	if cb != nil {
		cb(f.NodeName, f.Reason)
	}
}

func (s *Station) sendConfirmation(c delivery.Confirmation, now time.Time) {
	node, err := s.directory.Resolve(c.NodeName)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendConfirmation",
			"node":     c.NodeName,
			"error":    err,
		}).Warn("Confirmation dropped: node not in directory")
		return
	}

	mode := pki.ModeForKey(node.PublicKey)
	if _, err := s.transport.SendText(node.ID, c.Payload(), s.opts.Channel, mode); err != nil {
		// Confirmations are best-effort: log, never retry.
		logrus.WithFields(logrus.Fields{
			"function":   "sendConfirmation",
			"message_id": c.MessageID,
			"node":       c.NodeName,
			"error":      err,
		}).Warn("Confirmation send failed")
		return
	}
	telemetry.Confirmations.Inc()

	if s.registry.MarkConfirmationSent(c.MessageID, now) {
		if entry, ok := s.registry.Take(c.MessageID); ok && s.log != nil {
			s.log.Append(report.Entry{
				At:        now,
				NodeName:  entry.NodeName,
				MessageID: entry.ID,
				Outcome:   entry.State.String(),
				SNR:       entry.AckSNR,
				HasSNR:    entry.HasAckSNR,
				Retries:   entry.RetryCount,
			})
		}
	}
	s.dropPayload(c.MessageID)

	logrus.WithFields(logrus.Fields{
		"function":   "sendConfirmation",
		"message_id": c.MessageID,
		"node":       c.NodeName,
	}).Info("Confirmation sent")
}

// handleResolved runs on the transport callback goroutine for every
// resolution the ack handler applies.
func (s *Station) handleResolved(entry delivery.PendingMessage) {
	telemetry.Outcomes.WithLabelValues(entry.NodeName, entry.State.String()).Inc()
	if entry.State == delivery.StateRealAck && entry.HasAckSNR {
		telemetry.NodeSNR.WithLabelValues(entry.NodeName).Set(entry.AckSNR)
	}

	s.statusMu.Lock()
	status := s.lastStatus[entry.NodeName]
	if status.MessageID == entry.ID || status.MessageID == 0 {
		status.MessageID = entry.ID
		status.SentAt = entry.SentAt
		status.Outcome = entry.State
		status.Retries = entry.RetryCount
		if !entry.AckedAt.IsZero() {
			status.AckedAt = entry.AckedAt
			status.HasAckedAt = true
		}
		if entry.HasAckSNR {
			status.SNR = entry.AckSNR
			status.HasSNR = true
		}
		s.lastStatus[entry.NodeName] = status
	}
	s.statusMu.Unlock()

	switch entry.State {
	case delivery.StateRealAck:
		s.dropPayload(entry.ID)
		s.callbackMu.RLock()
		cb := s.onDelivered
		s.callbackMu.RUnlock()
		if cb != nil {
			cb(entry.NodeName, entry.AckSNR, entry.HasAckSNR)
		}
	case delivery.StateNak:
		// A NAK is terminal: consume the entry and report.
		s.registry.Take(entry.ID)
		s.dropPayload(entry.ID)
		if s.log != nil {
			s.log.Append(report.Entry{
				At:        entry.AckedAt,
				NodeName:  entry.NodeName,
				MessageID: entry.ID,
				Outcome:   entry.State.String(),
				Retries:   entry.RetryCount,
			})
		}
		s.callbackMu.RLock()
		cb := s.onDeliveryFailed
		s.callbackMu.RUnlock()
		if cb != nil {
			cb(entry.NodeName, entry.NakReason)
		}
	}
}

// LastStatus returns the status of the most recent message to a node.
func (s *Station) LastStatus(nodeName string) (MessageStatus, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	status, ok := s.lastStatus[nodeName]
	return status, ok
}

// AckIndicator renders the previous message's outcome for the {ack}
// template placeholder: "+" delivered, "-" failed, "?" still pending,
// empty when nothing was sent yet.
func (s *Station) AckIndicator(nodeName string) string {
	status, ok := s.LastStatus(nodeName)
	if !ok {
		return ""
	}
	switch status.Outcome {
	case delivery.StateRealAck, delivery.StateConfirmationSent:
		return "+"
	case delivery.StateNak, delivery.StateTimedOut:
		return "-"
	default:
		return "?"
	}
}

// Pending returns the number of tracked messages.
func (s *Station) Pending() int {
	return s.registry.Len()
}

// lastAckSNR returns the last acknowledged SNR for a node, used as the
// send-time SNR estimate of the next message.
func (s *Station) lastAckSNR(nodeName string) (float64, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	status, ok := s.lastStatus[nodeName]
	if !ok || !status.HasSNR {
		return 0, false
	}
	return status.SNR, true
}

// Kill flushes persistent state and closes the transport.
func (s *Station) Kill() {
	if err := s.stats.Flush(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"error":    err,
		}).Error("Failed to flush SNR statistics on shutdown")
	}
	if s.log != nil {
		if err := s.log.Flush(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Kill",
				"error":    err,
			}).Error("Failed to flush delivery log on shutdown")
		}
	}
	if err := s.transport.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"error":    err,
		}).Warn("Transport close failed")
	}

	logrus.WithField("function", "Kill").Info("Station shut down")
}
