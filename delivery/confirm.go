package delivery

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Confirmation is the deferred human-readable reply sent to a node
// after its real acknowledgment.
type Confirmation struct {
	MessageID uint32
	NodeName  string
	AckedAt   time.Time
	SNR       float64
	HasSNR    bool

	due time.Time
}

// Payload renders the on-air confirmation text.
func (c Confirmation) Payload() string {
	if c.HasSNR {
		return fmt.Sprintf("got your ack %s snr %.1f", c.AckedAt.Format("15:04:05"), c.SNR)
	}
	return fmt.Sprintf("got your ack %s", c.AckedAt.Format("15:04:05"))
}

// ConfirmationScheduler arms deferred confirmations and releases them
// when polled past their due time. The registry's terminal-state guard
// ensures at most one confirmation is ever scheduled per message, so
// the scheduler itself does no deduplication.
type ConfirmationScheduler struct {
	mu      sync.Mutex
	pending []Confirmation
}

// NewConfirmationScheduler creates an empty scheduler.
func NewConfirmationScheduler() *ConfirmationScheduler {
	return &ConfirmationScheduler{}
}

// Schedule arms a confirmation to fire delay after its ack time.
func (s *ConfirmationScheduler) Schedule(c Confirmation, delay time.Duration) {
	c.due = c.AckedAt.Add(delay)

	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Schedule",
		"message_id": c.MessageID,
		"node":       c.NodeName,
		"acked_at":   c.AckedAt,
		"due":        c.due,
	}).Info("Confirmation scheduled")
}

// PollDue returns and clears every confirmation due at or before now.
// Like the sweeper, it runs on the host tick, so due times fire within
// one tick interval.
func (s *ConfirmationScheduler) PollDue(now time.Time) []Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Confirmation
	remaining := s.pending[:0]
	for _, c := range s.pending {
		if !c.due.After(now) {
			due = append(due, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	s.pending = remaining
	return due
}

// Pending returns the number of armed confirmations.
func (s *ConfirmationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
