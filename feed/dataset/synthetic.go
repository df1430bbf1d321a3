package dataset

import (
	"fmt"
	"math/rand"

	"github.com/streamsim/batchfeed/feed"
)

// Synthetic generates random byte-valued images without touching the filesystem.
// One sample in six is held out, matching the CIFAR-10 train/test ratio.
type Synthetic struct {
	Size    int   // total samples
	Shape   []int // per-sample shape; defaults to 32x32x3
	Classes int   // label count; defaults to 10
	Seed    int64
}

var _ feed.SampleLoader = Synthetic{}

// Load ignores its path argument.
func (s Synthetic) Load(string) ([]feed.Sample, []feed.Sample, error) {
	if s.Size <= 0 {
		return nil, nil, fmt.Errorf("synthetic dataset size must be positive, got %d", s.Size)
	}
	shape := s.Shape
	if len(shape) == 0 {
		shape = []int{cifarSide, cifarSide, cifarChannels}
	}
	classes := s.Classes
	if classes <= 0 {
		classes = cifarClasses
	}
	n := 1
	for _, d := range shape {
		n *= d
	}

	rng := rand.New(rand.NewSource(s.Seed))
	samples := make([]feed.Sample, s.Size)
	for i := range samples {
		values := make([]float64, n)
		for j := range values {
			values[j] = float64(rng.Intn(256))
		}
		data, err := feed.NewTensor(shape, values)
		if err != nil {
			return nil, nil, err
		}
		samples[i] = feed.Sample{Data: data, Label: feed.IndexLabel(i % classes)}
	}

	split := s.Size - s.Size/6
	return samples[:split], samples[split:], nil
}
