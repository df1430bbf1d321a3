// Package tracker provides the append-only run log for batchfeed.
// This package has no dependencies on feed/; it stores pure data types.
package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Columns is the fixed field order of every log line.
var Columns = []string{"batch_id", "batch_size", "triggered", "start", "end", "accuracy", "env"}

// Record captures one tick of a run.
// Start, End and Accuracy are placeholders filled in by downstream tooling; the
// producer always writes zero.
type Record struct {
	BatchID   int64   `json:"batch_id"`
	BatchSize int     `json:"batch_size"`
	Triggered float64 `json:"triggered"` // unix seconds
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Accuracy  float64 `json:"accuracy"`
	Env       string  `json:"env"`
}

// NewRecord returns the record for a tick triggered at the given wall-clock time.
func NewRecord(batchID int64, batchSize int, triggered time.Time, env string) Record {
	return Record{
		BatchID:   batchID,
		BatchSize: batchSize,
		Triggered: float64(triggered.UnixNano()) / 1e9,
		Env:       env,
	}
}

// TriggeredAt converts Triggered back to a time.Time.
func (r Record) TriggeredAt() time.Time {
	sec, frac := math.Modf(r.Triggered)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// MarshalJSON writes the fields in Columns order. Float fields always carry a
// decimal point so schema inference on the consumer side sees doubles.
func (r Record) MarshalJSON() ([]byte, error) {
	for _, v := range []float64{r.Triggered, r.Start, r.End, r.Accuracy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("tracker: batch %d has a non-finite field", r.BatchID)
		}
	}
	env, err := json.Marshal(r.Env)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, 128)
	b = append(b, `{"batch_id":`...)
	b = strconv.AppendInt(b, r.BatchID, 10)
	b = append(b, `,"batch_size":`...)
	b = strconv.AppendInt(b, int64(r.BatchSize), 10)
	b = append(b, `,"triggered":`...)
	b = appendDouble(b, r.Triggered)
	b = append(b, `,"start":`...)
	b = appendDouble(b, r.Start)
	b = append(b, `,"end":`...)
	b = appendDouble(b, r.End)
	b = append(b, `,"accuracy":`...)
	b = appendDouble(b, r.Accuracy)
	b = append(b, `,"env":`...)
	b = append(b, env...)
	return append(b, '}'), nil
}

func appendDouble(b []byte, v float64) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, v, 'f', -1, 64)
	if !bytes.ContainsRune(b[start:], '.') {
		b = append(b, ".0"...)
	}
	return b
}

// parseRecord decodes a single log line, requiring exactly the Columns fields.
func parseRecord(line []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Record{}, err
	}
	if len(fields) != len(Columns) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(Columns), len(fields))
	}
	for _, c := range Columns {
		if _, ok := fields[c]; !ok {
			return Record{}, fmt.Errorf("missing field %q", c)
		}
	}
	var r Record
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Record{}, err
	}
	return r, nil
}
