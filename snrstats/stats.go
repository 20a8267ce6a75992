// Package snrstats accumulates per-node signal-quality statistics from
// resolved acknowledgments and persists them across restarts.
//
// Statistics outlive pending messages: the store is loaded on startup,
// flushed every Nth sample and on shutdown, and only ever cleared by
// an explicitly double-confirmed reset.
package snrstats

import (
	"errors"
	"time"
)

// RecentCapacity is the size of the per-node ring of most recent
// samples.
const RecentCapacity = 10

// DefaultAutosaveEvery is the default number of samples between
// automatic flushes.
const DefaultAutosaveEvery = 10

// ErrResetNotConfirmed indicates a ResetAll call without both
// confirmations set. Resetting is irreversible.
var ErrResetNotConfirmed = errors.New("reset not confirmed twice")

// Record holds the accumulated signal statistics for one node.
// Invariant: MinSNR <= Sum/Count <= MaxSNR whenever Count > 0, and
// Recent holds at most the last RecentCapacity samples in arrival
// order, oldest first.
type Record struct {
	MinSNR    float64   `json:"min_snr"`
	MaxSNR    float64   `json:"max_snr"`
	Sum       float64   `json:"sum"`
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Recent    []float64 `json:"recent"`
}

// Average returns the running mean, or zero when no samples exist.
func (r *Record) Average() float64 {
	if r.Count == 0 {
		return 0
	}
	return r.Sum / float64(r.Count)
}

func (r *Record) add(snr float64, at time.Time) {
	if r.Count == 0 {
		r.MinSNR = snr
		r.MaxSNR = snr
		r.FirstSeen = at
	} else {
		if snr < r.MinSNR {
			r.MinSNR = snr
		}
		if snr > r.MaxSNR {
			r.MaxSNR = snr
		}
	}
	r.Sum += snr
	r.Count++
	r.LastSeen = at

	r.Recent = append(r.Recent, snr)
	if len(r.Recent) > RecentCapacity {
		r.Recent = r.Recent[len(r.Recent)-RecentCapacity:]
	}
}

// clone returns a deep copy safe to hand outside the store's lock.
func (r *Record) clone() Record {
	out := *r
	out.Recent = make([]float64, len(r.Recent))
	copy(out.Recent, r.Recent)
	return out
}
