package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02 15:04:05"

var logHeader = []string{"Timestamp", "Node_Name", "Message_ID", "Outcome", "SNR", "Retries"}

// Entry is one resolved delivery in the CSV log.
type Entry struct {
	At        time.Time
	NodeName  string
	MessageID uint32
	Outcome   string
	SNR       float64
	HasSNR    bool
	Retries   int
}

// DeliveryLog buffers resolved deliveries and appends them to a CSV
// file on Flush, with retention-based cleanup of old rows.
type DeliveryLog struct {
	mu            sync.Mutex
	buffer        []Entry
	path          string
	retentionDays int
}

// NewDeliveryLog creates a log writing to path, keeping rows for
// retentionDays.
func NewDeliveryLog(path string, retentionDays int) *DeliveryLog {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &DeliveryLog{path: path, retentionDays: retentionDays}
}

// Append buffers one entry; nothing touches the disk until Flush.
func (l *DeliveryLog) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer = append(l.buffer, e)
}

// Flush appends all buffered entries to the CSV file, creating it
// with a header row when absent.
func (l *DeliveryLog) Flush() error {
	l.mu.Lock()
	pending := l.buffer
	l.buffer = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	_, statErr := os.Stat(l.path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.requeue(pending)
		return fmt.Errorf("open delivery log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(logHeader); err != nil {
			l.requeue(pending)
			return fmt.Errorf("write delivery log header: %w", err)
		}
	}
	for _, e := range pending {
		snr := ""
		if e.HasSNR {
			snr = strconv.FormatFloat(e.SNR, 'f', 1, 64)
		}
		row := []string{
			e.At.Format(timestampLayout),
			e.NodeName,
			strconv.FormatUint(uint64(e.MessageID), 10),
			e.Outcome,
			snr,
			strconv.Itoa(e.Retries),
		}
		if err := w.Write(row); err != nil {
			l.requeue(pending)
			return fmt.Errorf("write delivery log row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush delivery log: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Flush",
		"path":     l.path,
		"rows":     len(pending),
	}).Info("Delivery log entries saved")

	return nil
}

func (l *DeliveryLog) requeue(pending []Entry) {
	l.mu.Lock()
	l.buffer = append(pending, l.buffer...)
	l.mu.Unlock()
}

// CleanupOld rewrites the log keeping only rows newer than the
// retention window. Malformed rows are dropped.
func (l *DeliveryLog) CleanupOld(now time.Time) error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open delivery log: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	f.Close()
	if err != nil {
		return fmt.Errorf("read delivery log: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	cutoff := now.AddDate(0, 0, -l.retentionDays)
	kept := make([][]string, 0, len(rows))
	kept = append(kept, logHeader)
	removed := 0
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		at, err := time.Parse(timestampLayout, row[0])
		if err != nil || at.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, row)
	}

	tmp := l.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("rewrite delivery log: %w", err)
	}
	w := csv.NewWriter(out)
	if err := w.WriteAll(kept); err != nil {
		out.Close()
		return fmt.Errorf("rewrite delivery log: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return fmt.Errorf("rewrite delivery log: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("rewrite delivery log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace delivery log: %w", err)
	}

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"function":       "CleanupOld",
			"path":           l.path,
			"removed":        removed,
			"retention_days": l.retentionDays,
		}).Info("Old delivery log entries removed")
	}

	return nil
}
