package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveEmit_UpdatesCollectors(t *testing.T) {
	// GIVEN a fresh recorder
	r := NewRecorder()

	// WHEN two batches are observed
	r.ObserveEmit(1, 50, 1000, 10*time.Millisecond)
	r.ObserveEmit(2, 70, 1500, 20*time.Millisecond)

	// THEN counters accumulate and the gauge tracks the last id
	assert.Equal(t, 2.0, testutil.ToFloat64(r.BatchesTotal))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.RecordsTotal))
	assert.Equal(t, 2500.0, testutil.ToFloat64(r.BytesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.LastBatchID))
}

func TestRecorder_ObserveCollision(t *testing.T) {
	r := NewRecorder()
	r.ObserveCollision()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CollisionsTotal))
}

func TestRecorder_Nil_IsNoOp(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveEmit(1, 1, 1, time.Millisecond)
		r.ObserveCollision()
	})
}

func TestRecorder_Handler_ExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveEmit(1, 5, 10, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "batchfeed_batches_emitted_total 1")
	assert.Contains(t, string(body), "batchfeed_records_emitted_total 5")
}
