package feed

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamsim/batchfeed/feed/tracker"
)

// testPool returns a pool of n 2x2 samples whose values encode their index,
// labelled index%10.
func testPool(t *testing.T, n int) *Pool {
	t.Helper()
	samples := make([]Sample, n)
	for i := range samples {
		v := float64(i)
		data, err := NewTensor([]int{2, 2}, []float64{v, v, v, v})
		require.NoError(t, err)
		samples[i] = Sample{Data: data, Label: IndexLabel(i % 10)}
	}
	pool, err := NewPool(samples, nil)
	require.NoError(t, err)
	return pool
}

// testRun holds the paths and collaborators of a scheduler under test.
type testRun struct {
	outputDir string
	tracker   *tracker.Tracker
	emitter   *Emitter
	sleeps    []time.Duration
}

func newTestRun(t *testing.T) *testRun {
	t.Helper()
	dir := t.TempDir()
	return &testRun{
		outputDir: dir,
		tracker:   tracker.New(filepath.Join(t.TempDir(), "tracker.json")),
		emitter:   NewEmitter(dir),
	}
}

// scheduler builds a Scheduler whose sleep is recorded instead of performed.
func (r *testRun) scheduler(t *testing.T, policy ArrivalPolicy, interval time.Duration, stop int, pool *Pool) *Scheduler {
	t.Helper()
	clock := time.Unix(1700000000, 0)
	now := func() time.Time { return clock }
	sleep := func(d time.Duration) {
		r.sleeps = append(r.sleeps, d)
		clock = clock.Add(d)
	}
	s, err := NewScheduler(SchedulerConfig{Policy: policy, Interval: interval, Stop: stop, Env: "test_cpu", Seed: 42},
		pool, r.emitter, r.tracker, WithClock(now, sleep))
	require.NoError(t, err)
	return s
}
