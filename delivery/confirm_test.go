package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationPayload(t *testing.T) {
	ackedAt := time.Date(2026, 8, 24, 14, 30, 5, 0, time.UTC)

	c := Confirmation{NodeName: "yang", AckedAt: ackedAt, SNR: 7.25, HasSNR: true}
	assert.Equal(t, "got your ack 14:30:05 snr 7.2", c.Payload())

	c.HasSNR = false
	assert.Equal(t, "got your ack 14:30:05", c.Payload())
}

func TestConfirmationSchedulerPollDue(t *testing.T) {
	s := NewConfirmationScheduler()
	t0 := time.Unix(1000, 0)

	s.Schedule(Confirmation{MessageID: 1, NodeName: "yang", AckedAt: t0}, 5*time.Second)
	s.Schedule(Confirmation{MessageID: 2, NodeName: "ying", AckedAt: t0.Add(3 * time.Second)}, 5*time.Second)
	require.Equal(t, 2, s.Pending())

	// Before the first due time nothing fires.
	assert.Empty(t, s.PollDue(t0.Add(4*time.Second)))
	assert.Equal(t, 2, s.Pending())

	// The first confirmation fires at ack time plus delay.
	due := s.PollDue(t0.Add(5 * time.Second))
	require.Len(t, due, 1)
	assert.Equal(t, uint32(1), due[0].MessageID)
	assert.Equal(t, 1, s.Pending())

	// Polling is consuming.
	assert.Empty(t, s.PollDue(t0.Add(5*time.Second)))

	due = s.PollDue(t0.Add(10 * time.Second))
	require.Len(t, due, 1)
	assert.Equal(t, uint32(2), due[0].MessageID)
	assert.Zero(t, s.Pending())
}

func TestConfirmationSchedulerReleasesAllOverdue(t *testing.T) {
	s := NewConfirmationScheduler()
	t0 := time.Unix(1000, 0)

	for id := uint32(1); id <= 3; id++ {
		s.Schedule(Confirmation{MessageID: id, NodeName: "yang", AckedAt: t0}, 5*time.Second)
	}

	// A slow host tick releases everything past due in one poll.
	due := s.PollDue(t0.Add(time.Minute))
	assert.Len(t, due, 3)
	assert.Zero(t, s.Pending())
}
