// Package testutil provides shared test infrastructure for batchfeed.
// It holds the golden scenario types and pool/artifact helpers used by cmd/
// and the packages layered on top of feed. feed's own tests keep local
// helpers, since this package imports feed.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/streamsim/batchfeed/feed"
)

// GoldenDataset represents the structure of testdata/golden_feed.json.
type GoldenDataset struct {
	Scenarios []GoldenScenario `json:"scenarios"`
}

// GoldenScenario is one run and the batch sizes it must produce.
type GoldenScenario struct {
	Name   string            `json:"name"`
	Policy feed.PolicyConfig `json:"policy"`
	Stop   int               `json:"stop"`
	Seed   int64             `json:"seed"`

	// Sizes is set for deterministic policies.
	Sizes []int `json:"sizes,omitempty"`
	// MinSize and MaxSize bound every size for the random policy.
	MinSize int `json:"min_size,omitempty"`
	MaxSize int `json:"max_size,omitempty"`
}

// goldenPath locates testdata/golden_feed.json from this file, so tests in
// any package find it regardless of their working directory.
func goldenPath(t *testing.T) string {
	t.Helper()
	_, here, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testutil source file")
	}
	return filepath.Join(filepath.Dir(here), "..", "..", "testdata", "golden_feed.json")
}

// LoadGoldenDataset returns the golden run scenarios. Each scenario must name
// a policy that builds and either exact sizes or a size range.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	path := goldenPath(t)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	for _, sc := range dataset.Scenarios {
		if _, err := sc.Policy.Build(); err != nil {
			t.Fatalf("golden scenario %s: %v", sc.Name, err)
		}
		if sc.Sizes == nil && sc.MaxSize == 0 {
			t.Fatalf("golden scenario %s has neither sizes nor a size range", sc.Name)
		}
		if sc.Sizes != nil && len(sc.Sizes) != sc.Stop {
			t.Fatalf("golden scenario %s lists %d sizes for %d ticks", sc.Name, len(sc.Sizes), sc.Stop)
		}
	}
	return &dataset
}

// Pool returns a pool of n 2x2 samples. Sample i holds the value i in every
// cell and carries label i%10.
func Pool(t *testing.T, n int) *feed.Pool {
	t.Helper()
	samples := make([]feed.Sample, n)
	for i := range samples {
		v := float64(i)
		data, err := feed.NewTensor([]int{2, 2}, []float64{v, v, v, v})
		if err != nil {
			t.Fatalf("building sample %d: %v", i, err)
		}
		samples[i] = feed.Sample{Data: data, Label: feed.IndexLabel(i % 10)}
	}
	pool, err := feed.NewPool(samples, nil)
	if err != nil {
		t.Fatalf("building pool: %v", err)
	}
	return pool
}

// Records returns the first n samples of pool, cycling when n exceeds its size.
func Records(pool *feed.Pool, n int) []feed.Sample {
	out := make([]feed.Sample, n)
	for i := range out {
		out[i] = pool.At(i % pool.Len())
	}
	return out
}

// ArtifactNames lists the artifact file names in dir in batch id order.
func ArtifactNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	type named struct {
		id   int64
		name string
	}
	var found []named
	for _, e := range entries {
		if id, ok := feed.ParseArtifactName(e.Name()); ok && !e.IsDir() {
			found = append(found, named{id, e.Name()})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names
}
