package feed

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(t *testing.T, id int64, n int) Batch {
	t.Helper()
	pool := testPool(t, n)
	records := make([]Sample, n)
	for i := range records {
		records[i] = pool.At(i)
	}
	return Batch{ID: id, Records: records}
}

func TestEmitter_Emit_WritesArtifactContract(t *testing.T) {
	// GIVEN an emitter over an empty directory
	dir := t.TempDir()
	e := NewEmitter(dir)

	// WHEN batch 1 with three records is emitted
	ref, err := e.Emit(testBatch(t, 1, 3))
	require.NoError(t, err)

	// THEN batch_1.json holds an array of {idx, data, label} objects
	assert.Equal(t, filepath.Join(dir, "batch_1.json"), ref.Path)
	assert.Equal(t, 3, ref.Records)
	info, err := os.Stat(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), ref.Bytes)

	raw, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	var body []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body, 3)
	assert.Equal(t, `1`, string(body[0]["idx"]))
	assert.Equal(t, `[[0,0],[0,0]]`, string(body[0]["data"]))
	assert.Equal(t, `0`, string(body[0]["label"]))
	assert.Equal(t, `[[2,2],[2,2]]`, string(body[2]["data"]))
	assert.Len(t, body[0], 3)
}

func TestEmitter_Emit_DistinctIDsNeverCollide(t *testing.T) {
	e := NewEmitter(t.TempDir())
	for id := int64(1); id <= 5; id++ {
		_, err := e.Emit(testBatch(t, id, 2))
		require.NoError(t, err, "batch %d", id)
	}
	entries, err := os.ReadDir(e.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 5, "only published artifacts remain; no temp files")
}

func TestEmitter_Emit_ReusedIDFailsWithoutOverwriting(t *testing.T) {
	// GIVEN batch 1 already emitted
	e := NewEmitter(t.TempDir())
	first, err := e.Emit(testBatch(t, 1, 2))
	require.NoError(t, err)
	before, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	// WHEN batch 1 is emitted again with different content
	_, err = e.Emit(testBatch(t, 1, 5))

	// THEN the emit fails with a collision and the original is untouched
	assert.True(t, errors.Is(err, ErrArtifactExists), "got %v", err)
	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(e.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEmitter_Emit_MissingDirectory(t *testing.T) {
	e := NewEmitter(filepath.Join(t.TempDir(), "nope"))
	_, err := e.Emit(testBatch(t, 1, 1))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrArtifactExists))
}

func TestEmitter_Emit_UnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	// GIVEN a read-only output directory
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	// WHEN a batch is emitted
	_, err := NewEmitter(dir).Emit(testBatch(t, 1, 2))

	// THEN it fails as an I/O error, not a collision, and leaves nothing behind
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrArtifactExists))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmitter_Emit_RejectsNonPositiveID(t *testing.T) {
	_, err := NewEmitter(t.TempDir()).Emit(testBatch(t, 0, 1))
	assert.Error(t, err)
}

func TestArtifactName_RoundTrip(t *testing.T) {
	assert.Equal(t, "batch_12.json", ArtifactName(12))
	id, ok := ParseArtifactName("batch_12.json")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"batch_.json", "batch_0.json", "batch_x.json", ".batch-123.tmp", "batch_3.json.tmp", "tracker.json"} {
		_, ok := ParseArtifactName(bad)
		assert.False(t, ok, bad)
	}
}

func TestReadArtifact_DecodesEmittedBatch(t *testing.T) {
	e := NewEmitter(t.TempDir())
	ref, err := e.Emit(Batch{ID: 4, Records: []Sample{{Data: Tensor{Shape: []int{2}, Values: []float64{1, 2}}, Label: NamedLabel("ship")}}})
	require.NoError(t, err)

	records, err := ReadArtifact(ref.Path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(4), records[0].Idx)
	assert.Equal(t, []int{2}, records[0].Data.Shape)
	assert.Equal(t, NamedLabel("ship"), records[0].Label)
}
