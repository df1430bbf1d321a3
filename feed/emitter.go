package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	artifactPrefix = "batch_"
	artifactExt    = ".json"
	tempPattern    = ".batch-*.tmp"
)

// ArtifactRecord is one element of an artifact body.
type ArtifactRecord struct {
	Idx   int64  `json:"idx"`
	Data  Tensor `json:"data"`
	Label Label  `json:"label"`
}

var artifactFields = []string{"idx", "data", "label"}

// UnmarshalJSON requires exactly the idx, data and label fields, none null,
// with data a nested array.
func (r *ArtifactRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("record must be an object")
	}
	for k := range raw {
		if k != "idx" && k != "data" && k != "label" {
			return fmt.Errorf("unknown field %q", k)
		}
	}
	for _, k := range artifactFields {
		v, ok := raw[k]
		if !ok {
			return fmt.Errorf("missing field %q", k)
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("field %q is null", k)
		}
	}
	if data := bytes.TrimSpace(raw["data"]); len(data) == 0 || data[0] != '[' {
		return errors.New(`field "data" must be a nested array`)
	}

	var rec ArtifactRecord
	if err := json.Unmarshal(raw["idx"], &rec.Idx); err != nil {
		return fmt.Errorf("field \"idx\": %w", err)
	}
	if err := json.Unmarshal(raw["data"], &rec.Data); err != nil {
		return fmt.Errorf("field \"data\": %w", err)
	}
	if err := json.Unmarshal(raw["label"], &rec.Label); err != nil {
		return fmt.Errorf("field \"label\": %w", err)
	}
	*r = rec
	return nil
}

// ArtifactRef describes an artifact after it has been published.
type ArtifactRef struct {
	BatchID int64
	Path    string
	Records int
	Bytes   int64
}

// ArtifactName returns the file name used for a batch id, e.g. batch_7.json.
func ArtifactName(batchID int64) string {
	return artifactPrefix + strconv.FormatInt(batchID, 10) + artifactExt
}

// ParseArtifactName extracts the batch id from an artifact file name.
// Returns false for anything that is not a published artifact name.
func ParseArtifactName(name string) (int64, bool) {
	if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactExt) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactExt), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Emitter publishes batches as artifacts in a single output directory.
//
// Each artifact is written to a hidden temp file in the same directory and then
// hard-linked to its final name. The link fails if the name is taken, so an
// artifact is never overwritten and a visible artifact is always complete.
type Emitter struct {
	dir string
}

// NewEmitter returns an Emitter writing into dir. The directory must already exist.
func NewEmitter(dir string) *Emitter {
	return &Emitter{dir: dir}
}

// Dir returns the output directory.
func (e *Emitter) Dir() string { return e.dir }

// Emit writes batch to <dir>/batch_<id>.json.
// Returns ErrArtifactExists if that name is already present.
func (e *Emitter) Emit(batch Batch) (ArtifactRef, error) {
	if batch.ID <= 0 {
		return ArtifactRef{}, fmt.Errorf("emitting batch: id must be positive, got %d", batch.ID)
	}
	info, err := os.Stat(e.dir)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return ArtifactRef{}, fmt.Errorf("output directory %q is not a directory", e.dir)
	}

	dest := filepath.Join(e.dir, ArtifactName(batch.ID))
	if _, err := os.Lstat(dest); err == nil {
		return ArtifactRef{}, fmt.Errorf("%w: %s", ErrArtifactExists, dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return ArtifactRef{}, fmt.Errorf("checking %s: %w", dest, err)
	}

	tmp, err := os.CreateTemp(e.dir, tempPattern)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("creating temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	n, err := writeArtifact(tmp, batch)
	if err != nil {
		_ = tmp.Close()
		return ArtifactRef{}, fmt.Errorf("writing batch %d: %w", batch.ID, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return ArtifactRef{}, fmt.Errorf("writing batch %d: %w", batch.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return ArtifactRef{}, fmt.Errorf("closing batch %d: %w", batch.ID, err)
	}

	if err := os.Link(tmpPath, dest); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ArtifactRef{}, fmt.Errorf("%w: %s", ErrArtifactExists, dest)
		}
		return ArtifactRef{}, fmt.Errorf("publishing batch %d: %w", batch.ID, err)
	}
	return ArtifactRef{BatchID: batch.ID, Path: dest, Records: len(batch.Records), Bytes: n}, nil
}

func writeArtifact(w io.Writer, batch Batch) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 64*1024)
	records := make([]ArtifactRecord, len(batch.Records))
	for i, s := range batch.Records {
		records[i] = ArtifactRecord{Idx: batch.ID, Data: s.Data, Label: s.Label}
	}
	if err := json.NewEncoder(bw).Encode(records); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ReadArtifact decodes an artifact body.
func ReadArtifact(path string) ([]ArtifactRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []ArtifactRecord
	dec := json.NewDecoder(bufio.NewReader(f))
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return records, nil
}
