package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsim/batchfeed/feed/tracker"
)

func TestReconcile_CleanRun_IsConsistent(t *testing.T) {
	// GIVEN a completed run
	run := newTestRun(t)
	policy, _ := NewIncreasing(2)
	_, err := run.scheduler(t, policy, 0, 3, testPool(t, 4)).Run()
	require.NoError(t, err)
	records, err := run.tracker.Read()
	require.NoError(t, err)

	// WHEN reconciled
	report, err := Reconcile(run.outputDir, records)
	require.NoError(t, err)

	// THEN log and artifacts agree
	assert.True(t, report.Consistent(), "%+v", report)
	assert.Equal(t, 3, report.Logged)
	assert.Equal(t, 3, report.Artifacts)
	assert.Positive(t, report.Bytes)
}

func TestReconcile_ReportsEveryKindOfDrift(t *testing.T) {
	dir := t.TempDir()
	e := NewEmitter(dir)
	pool := testPool(t, 3)
	emit := func(id int64, n int) {
		records := make([]Sample, n)
		for i := range records {
			records[i] = pool.At(0)
		}
		_, err := e.Emit(Batch{ID: id, Records: records})
		require.NoError(t, err)
	}
	emit(1, 2) // matches its record
	emit(2, 3) // logged as 4
	emit(5, 1) // never logged
	require.NoError(t, os.WriteFile(filepath.Join(dir, ArtifactName(6)), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	at := time.Unix(1, 0)
	records := []tracker.Record{
		tracker.NewRecord(1, 2, at, "x"),
		tracker.NewRecord(2, 4, at, "x"),
		tracker.NewRecord(3, 7, at, "x"), // logged, never emitted
		tracker.NewRecord(6, 1, at, "x"), // emitted but corrupt
	}

	report, err := Reconcile(dir, records)
	require.NoError(t, err)

	assert.False(t, report.Consistent())
	assert.Equal(t, []int64{3}, report.MissingArtifacts)
	assert.Equal(t, []int64{5}, report.UnloggedArtifacts)
	assert.Equal(t, []SizeMismatch{{BatchID: 2, Logged: 4, Found: 3}}, report.SizeMismatches)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, int64(6), report.Problems[0].BatchID)
	assert.Equal(t, 4, report.Artifacts)
}

func TestCheckArtifact_RejectsWrongIdx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ArtifactName(2))
	require.NoError(t, os.WriteFile(path, []byte(`[{"idx":1,"data":[1],"label":0}]`), 0o644))

	_, _, err := CheckArtifact(path)
	assert.ErrorContains(t, err, "idx 1")
}

func TestCheckArtifact_RejectsEmptyBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArtifactName(1))
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	_, _, err := CheckArtifact(path)
	assert.Error(t, err)
}

func TestCheckArtifact_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing data and label", `[{"idx":1}]`},
		{"missing label", `[{"idx":1,"data":[1]}]`},
		{"null label", `[{"idx":1,"data":[1],"label":null}]`},
		{"null data", `[{"idx":1,"data":null,"label":0}]`},
		{"scalar data", `[{"idx":1,"data":7,"label":1}]`},
		{"empty data", `[{"idx":1,"data":[],"label":1}]`},
		{"extra field", `[{"idx":1,"data":[1],"label":1,"extra":true}]`},
		{"record not an object", `[7]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN an artifact whose only record breaks the record shape
			path := filepath.Join(t.TempDir(), ArtifactName(1))
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			// WHEN it is checked
			_, _, err := CheckArtifact(path)

			// THEN it is reported as malformed
			assert.Error(t, err)
		})
	}
}

func TestCheckArtifact_AcceptsWellFormedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArtifactName(4))
	body := `[{"idx":4,"data":[[1,2],[3,4]],"label":3},{"idx":4,"data":[0],"label":"frog"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	id, n, err := CheckArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	assert.Equal(t, 2, n)
}

func TestReconcile_MissingDirectory(t *testing.T) {
	_, err := Reconcile(filepath.Join(t.TempDir(), "absent"), nil)
	assert.Error(t, err)
}
