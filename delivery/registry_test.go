package delivery

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndTake(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Now()

	err := r.Register(1, "yang", t0, 9.5, true)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	entry, ok := r.Take(1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), entry.ID)
	assert.Equal(t, "yang", entry.NodeName)
	assert.Equal(t, StateSent, entry.State)
	assert.Equal(t, 9.5, entry.SNRAtSend)
	assert.True(t, entry.HasSendSNR)

	// Take is at-most-once.
	_, ok = r.Take(1)
	assert.False(t, ok)
}

func TestRegistryDuplicateID(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Now()

	require.NoError(t, r.Register(7, "yang", t0, 0, false))
	err := r.Register(7, "ying", t0, 0, false)
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestRegistryResolveUnknownID(t *testing.T) {
	r := NewRegistry(0)

	_, applied, err := r.Resolve(99, StateRealAck, time.Now(), 5, true, "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, applied)
}

func TestRegistryStateMachine(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Now()
	require.NoError(t, r.Register(1, "yang", t0, 0, false))

	// Sent -> ImplicitAck keeps the entry live.
	entry, applied, err := r.Resolve(1, StateImplicitAck, t0.Add(100*time.Millisecond), 0, false, "")
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, StateImplicitAck, entry.State)
	assert.True(t, entry.State.Live())

	// ImplicitAck -> RealAck is terminal.
	at := t0.Add(2 * time.Second)
	entry, applied, err = r.Resolve(1, StateRealAck, at, 7.0, true, "")
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, StateRealAck, entry.State)
	assert.Equal(t, 7.0, entry.AckSNR)
	assert.True(t, entry.HasAckSNR)
	assert.Equal(t, at, entry.AckedAt)

	// A later NAK for the same id is discarded, not applied.
	entry, applied, err = r.Resolve(1, StateNak, at.Add(time.Second), 0, false, "MAX_RETRANSMIT")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, StateRealAck, entry.State)
	assert.Empty(t, entry.NakReason)
}

func TestRegistryResolveNakRecordsReason(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Now()
	require.NoError(t, r.Register(2, "ying", t0, 0, false))

	entry, applied, err := r.Resolve(2, StateNak, t0.Add(time.Second), 0, false, "NO_ROUTE")
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, StateNak, entry.State)
	assert.Equal(t, "NO_ROUTE", entry.NakReason)
}

func TestRegistrySweepExpired(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Unix(1000, 0)

	require.NoError(t, r.Register(1, "yang", t0, 0, false))
	require.NoError(t, r.Register(2, "ying", t0.Add(30*time.Second), 0, false))

	// At t0+61 only the first send is past a 60s timeout.
	expired := r.SweepExpired(t0.Add(61*time.Second), 60*time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, uint32(1), expired[0].ID)
	assert.Equal(t, StateTimedOut, expired[0].State)

	// Swept entries are not swept twice.
	expired = r.SweepExpired(t0.Add(62*time.Second), 60*time.Second)
	assert.Empty(t, expired)

	// The second entry expires later.
	expired = r.SweepExpired(t0.Add(91*time.Second), 60*time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, uint32(2), expired[0].ID)
}

func TestRegistrySweepAlsoTimesOutImplicitAcks(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Unix(1000, 0)
	require.NoError(t, r.Register(1, "yang", t0, 0, false))

	_, applied, err := r.Resolve(1, StateImplicitAck, t0.Add(time.Second), 0, false, "")
	require.NoError(t, err)
	require.True(t, applied)

	expired := r.SweepExpired(t0.Add(61*time.Second), 60*time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, StateTimedOut, expired[0].State)
}

func TestRegistryRetentionPrunesResolvedEntries(t *testing.T) {
	r := NewRegistry(time.Minute)
	t0 := time.Unix(1000, 0)
	require.NoError(t, r.Register(1, "yang", t0, 0, false))

	_, applied, err := r.Resolve(1, StateRealAck, t0.Add(time.Second), 7, true, "")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 1, r.Len())

	// Within retention the entry survives the sweep.
	r.SweepExpired(t0.Add(30*time.Second), 60*time.Second)
	assert.Equal(t, 1, r.Len())

	// Past retention it is pruned even though it was never taken.
	r.SweepExpired(t0.Add(2*time.Minute), 60*time.Second)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryMarkConfirmationSent(t *testing.T) {
	r := NewRegistry(0)
	t0 := time.Now()
	require.NoError(t, r.Register(1, "yang", t0, 0, false))

	// Only RealAck entries can move to ConfirmationSent.
	assert.False(t, r.MarkConfirmationSent(1, t0))

	_, applied, err := r.Resolve(1, StateRealAck, t0.Add(time.Second), 7, true, "")
	require.NoError(t, err)
	require.True(t, applied)

	assert.True(t, r.MarkConfirmationSent(1, t0.Add(6*time.Second)))
	entry, ok := r.Take(1)
	require.True(t, ok)
	assert.Equal(t, StateConfirmationSent, entry.State)

	// Marking twice is a no-op.
	assert.False(t, r.MarkConfirmationSent(1, t0))
}

// TestRegistryResolveSweepRace drives Resolve and SweepExpired from
// two goroutines against the same ids and verifies exactly one
// transition out of the live states wins for every message.
func TestRegistryResolveSweepRace(t *testing.T) {
	const n = 200
	r := NewRegistry(0)
	t0 := time.Unix(1000, 0)
	for i := uint32(1); i <= n; i++ {
		require.NoError(t, r.Register(i, "yang", t0, 0, false))
	}

	var wg sync.WaitGroup
	applies := make([]bool, n+1)

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint32(1); i <= n; i++ {
			_, applied, err := r.Resolve(i, StateRealAck, t0.Add(time.Second), 7, true, "")
			if err == nil && applied {
				applies[i] = true
			}
		}
	}()
	go func() {
		defer wg.Done()
		r.SweepExpired(t0.Add(61*time.Second), 60*time.Second)
	}()
	wg.Wait()

	for i := uint32(1); i <= n; i++ {
		entry, ok := r.Take(i)
		require.True(t, ok, "entry %d missing", i)
		require.True(t, entry.State.Terminal(), "entry %d not terminal", i)
		if applies[i] {
			assert.Equal(t, StateRealAck, entry.State, "entry %d acked but state differs", i)
		} else {
			assert.Equal(t, StateTimedOut, entry.State, "entry %d lost the race but is not timed out", i)
		}
	}
}
