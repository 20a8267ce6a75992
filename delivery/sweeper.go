package delivery

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Retry instructs the engine to resend a timed-out message. The resend
// gets a fresh transport-assigned id; RetryCount is the count to carry
// into the re-registration.
type Retry struct {
	MessageID  uint32
	NodeName   string
	SNRAtSend  float64
	HasSendSNR bool
	RetryCount int
}

// Failure reports a message whose retry budget is spent.
type Failure struct {
	MessageID  uint32
	NodeName   string
	Reason     string
	RetryCount int
}

// Sweeper scans the registry for expired entries on every host loop
// tick. It owns the retry policy: at most MaxRetries resends per
// logical message (default one), after which a timeout is reported as
// delivery failure instead of retried.
//
// Because it only runs on the tick, timeouts fire within one tick
// interval of their deadline, not exactly at it.
type Sweeper struct {
	registry   *Registry
	timeout    time.Duration
	maxRetries int
}

// NewSweeper creates a sweeper with the given ack timeout and retry
// bound. A negative maxRetries is treated as zero (never retry).
func NewSweeper(registry *Registry, timeout time.Duration, maxRetries int) *Sweeper {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Sweeper{
		registry:   registry,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

// Tick sweeps expired entries and splits them into retry instructions
// and terminal failures.
func (s *Sweeper) Tick(now time.Time) ([]Retry, []Failure) {
	expired := s.registry.SweepExpired(now, s.timeout)
	if len(expired) == 0 {
		return nil, nil
	}

	var retries []Retry
	var failures []Failure
	for _, entry := range expired {
		if entry.RetryCount < s.maxRetries {
			retries = append(retries, Retry{
				MessageID:  entry.ID,
				NodeName:   entry.NodeName,
				SNRAtSend:  entry.SNRAtSend,
				HasSendSNR: entry.HasSendSNR,
				RetryCount: entry.RetryCount + 1,
			})
			continue
		}
		failures = append(failures, Failure{
			MessageID:  entry.ID,
			NodeName:   entry.NodeName,
			Reason:     entry.NakReason,
			RetryCount: entry.RetryCount,
		})
	}

	logrus.WithFields(logrus.Fields{
		"function": "Tick",
		"expired":  len(expired),
		"retries":  len(retries),
		"failures": len(failures),
		"now":      now,
	}).Info("Retry sweep completed")

	return retries, failures
}
