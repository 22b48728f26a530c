// Package history appends one JSONL record per finished download.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modelfetch/internal/catalog"
	"modelfetch/internal/download"
	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
	"modelfetch/internal/progress"
)

// FileName is the history file inside the state directory
const FileName = "download_history.jsonl"

// Record is one line of the history file
type Record struct {
	Timestamp       time.Time `json:"ts"`
	Variant         string    `json:"variant"`
	Outcome         string    `json:"outcome"`
	Source          string    `json:"source,omitempty"`
	Path            string    `json:"path,omitempty"`
	Bytes           int64     `json:"bytes,omitempty"`
	DurationSeconds float64   `json:"duration_s"`
	BytesPerSecond  float64   `json:"bytes_per_s,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Writer appends records; it implements download.Observer
type Writer struct {
	path   string
	logger *logging.Logger
	mu     sync.Mutex
}

// NewWriter creates a writer for the history file in stateDir
func NewWriter(stateDir string, logger *logging.Logger) *Writer {
	return &Writer{
		path:   filepath.Join(stateDir, FileName),
		logger: logger,
	}
}

// Path returns the history file location
func (w *Writer) Path() string {
	return w.path
}

// OnProgress implements download.Observer
func (w *Writer) OnProgress(catalog.Variant, progress.Event) {}

// OnOutcome implements download.Observer. Write failures are logged only.
func (w *Writer) OnOutcome(o download.Outcome) {
	if err := w.Write(NewRecord(o)); err != nil {
		w.logger.Warn("history.write_failed", "Failed to append download history", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
	}
}

// NewRecord converts an outcome into a history record
func NewRecord(o download.Outcome) Record {
	rec := Record{
		Timestamp:       time.Now().UTC(),
		Variant:         o.Variant.ID,
		Outcome:         o.Kind.String(),
		Source:          o.Source,
		Path:            o.Path,
		DurationSeconds: o.Elapsed.Seconds(),
	}
	if o.Kind == download.OutcomeError {
		rec.Error = o.Message()
	}
	if o.Kind == download.OutcomeSuccess {
		rec.Bytes = fsutil.FileSize(o.Path)
		if rec.DurationSeconds > 0 {
			rec.BytesPerSecond = float64(rec.Bytes) / rec.DurationSeconds
		}
	}
	return rec
}

// Write appends rec as one JSON line
func (w *Writer) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := fsutil.EnsureDirectory(filepath.Dir(w.path)); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer fsutil.CloseWithError(f.Close, w.logger, w.path)

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Read returns the last n records, oldest first; n <= 0 returns all.
// Malformed lines are skipped.
func Read(path string, n int) ([]Record, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if json.Unmarshal(scanner.Bytes(), &rec) != nil {
			continue
		}
		records = append(records, rec)
		if n > 0 && len(records) > n {
			records = records[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}
