package snrstats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the thread-safe per-node statistics accumulator. One writer
// on the host loop and one on the transport callback goroutine may use
// it concurrently; the mutex is held for the accumulate-and-append
// body only, never across file I/O.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record

	path          string
	autosaveEvery int
	sinceFlush    int
}

// NewStore creates a store persisting to path. autosaveEvery <= 0
// falls back to DefaultAutosaveEvery.
func NewStore(path string, autosaveEvery int) *Store {
	if autosaveEvery <= 0 {
		autosaveEvery = DefaultAutosaveEvery
	}
	return &Store{
		records:       make(map[string]*Record),
		path:          path,
		autosaveEvery: autosaveEvery,
	}
}

// RecordSample folds one SNR observation into the node's record,
// creating it on first sample. Every autosaveEvery-th sample triggers
// a flush; a flush failure is logged and the in-memory state stays
// authoritative.
func (s *Store) RecordSample(nodeName string, snr float64, observedAt time.Time) {
	s.mu.Lock()
	rec, ok := s.records[nodeName]
	if !ok {
		rec = &Record{}
		s.records[nodeName] = rec
	}
	rec.add(snr, observedAt)

	s.sinceFlush++
	flush := s.sinceFlush >= s.autosaveEvery
	if flush {
		s.sinceFlush = 0
	}
	count := rec.Count
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "RecordSample",
		"node":     nodeName,
		"snr":      snr,
		"at":       observedAt,
		"count":    count,
	}).Debug("SNR sample recorded")

	if flush {
		if err := s.Flush(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "RecordSample",
				"path":     s.path,
				"error":    err,
			}).Error("Autosave failed, keeping in-memory stats")
		}
	}
}

// Snapshot returns a read-only copy of a node's record.
func (s *Store) Snapshot(nodeName string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[nodeName]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// All returns copies of every record keyed by node name.
func (s *Store) All() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(s.records))
	for name, rec := range s.records {
		out[name] = rec.clone()
	}
	return out
}

// ResetAll irreversibly clears every record. Both confirmations must
// be gathered independently by the caller; anything less is refused.
func (s *Store) ResetAll(confirmed, reconfirmed bool) error {
	if !confirmed || !reconfirmed {
		return ErrResetNotConfirmed
	}

	s.mu.Lock()
	cleared := len(s.records)
	s.records = make(map[string]*Record)
	s.sinceFlush = 0
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ResetAll",
		"cleared":  cleared,
	}).Warn("All SNR statistics reset")

	return s.Flush()
}

// Flush serializes all records to the stats file. The snapshot is
// taken under the lock; the write happens outside it.
func (s *Store) Flush() error {
	s.mu.Lock()
	snapshot := make(map[string]Record, len(s.records))
	for name, rec := range s.records {
		snapshot[name] = rec.clone()
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snr stats: %w", err)
	}

	// Write-then-rename so a crash mid-flush never corrupts the file.
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create stats dir: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snr stats: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snr stats: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Flush",
		"path":     s.path,
		"nodes":    len(snapshot),
	}).Debug("SNR statistics flushed")

	return nil
}

// Load restores records from the stats file. A missing file is not an
// error: an empty store is the valid initial state.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"path":     s.path,
		}).Info("No SNR statistics file, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snr stats: %w", err)
	}

	loaded := make(map[string]*Record)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse snr stats %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.records = loaded
	s.sinceFlush = 0
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     s.path,
		"nodes":    len(loaded),
	}).Info("SNR statistics loaded")

	return nil
}
