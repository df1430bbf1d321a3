package tracker

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	// ErrMalformedLog is returned when an existing log line cannot be parsed.
	// The tracker never repairs a log.
	ErrMalformedLog = errors.New("malformed tracker log")

	// ErrOutOfOrder is returned when an appended batch id does not exceed the last logged one.
	ErrOutOfOrder = errors.New("batch id not increasing")
)

// Tracker appends records to a JSON-lines log, one record per line.
//
// Every Append reads the whole log, validates it, and atomically replaces the
// file with the prior lines (byte-for-byte) plus the new one. Nothing is held
// open between calls. Thread-safety: single writer only.
type Tracker struct {
	path string
}

// New returns a Tracker for the log at path. The parent directory must exist.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Path returns the log location.
func (t *Tracker) Path() string { return t.path }

// Append adds rec as the last line of the log, creating the log if absent.
func (t *Tracker) Append(rec Record) error {
	existing, err := os.ReadFile(t.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading tracker log: %w", err)
	}
	lines, records, err := parseLog(existing)
	if err != nil {
		return fmt.Errorf("%s: %w", t.path, err)
	}
	if n := len(records); n > 0 && rec.BatchID <= records[n-1].BatchID {
		return fmt.Errorf("%w: appending batch %d after batch %d", ErrOutOfOrder, rec.BatchID, records[n-1].BatchID)
	}
	line, err := rec.MarshalJSON()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')
	return replaceFile(t.path, buf.Bytes())
}

// Read returns every record in the log, in file order.
// A missing log reads as empty.
func (t *Tracker) Read() ([]Record, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tracker log: %w", err)
	}
	_, records, err := parseLog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.path, err)
	}
	return records, nil
}

// parseLog splits data into lines and decodes each one. A single trailing
// newline is allowed; any other empty line is malformed.
func parseLog(data []byte) ([][]byte, []Record, error) {
	data = bytes.TrimSuffix(data, []byte("\n"))
	if len(data) == 0 {
		return nil, nil, nil
	}
	raw := bytes.Split(data, []byte("\n"))
	records := make([]Record, 0, len(raw))
	for i, l := range raw {
		l = bytes.TrimSuffix(l, []byte("\r"))
		raw[i] = l
		rec, err := parseRecord(l)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLog, i+1, err)
		}
		records = append(records, rec)
	}
	return raw, records, nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tracker-*.tmp")
	if err != nil {
		return fmt.Errorf("writing tracker log: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing tracker log: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing tracker log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing tracker log: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing tracker log: %w", err)
	}
	return nil
}
