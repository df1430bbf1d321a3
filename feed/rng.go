package feed

import (
	"hash/fnv"
	"io"
	"math/rand"
)

// Random streams drawn during a run.
const (
	// SubsystemPolicy sizes batches. Only RandomRange draws from it, once per tick.
	SubsystemPolicy = "policy"

	// SubsystemSampler picks pool indices, size draws per tick.
	SubsystemSampler = "sampler"
)

// PartitionedRNG hands out one *rand.Rand per named stream of a run.
//
// The policy stream is seeded with the run seed itself, so a --seed value
// reproduces the same batch sizes as a plain rand.NewSource(seed). Every
// other stream is seeded with the run seed mixed with a hash of its name.
// Because batch sizes and sample picks come from separate streams, a
// larger pool or a different size never shifts the size sequence.
//
// Not safe for concurrent use; the scheduler owns it.
type PartitionedRNG struct {
	seed    int64
	streams map[string]*rand.Rand
}

// NewPartitionedRNG returns the streams for a run seeded with seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, streams: make(map[string]*rand.Rand, 2)}
}

// ForSubsystem returns the stream for name, creating it on first use.
// Repeated calls with the same name return the same generator.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	rng, ok := p.streams[name]
	if !ok {
		rng = rand.New(rand.NewSource(p.streamSeed(name)))
		p.streams[name] = rng
	}
	return rng
}

// Seed returns the run seed.
func (p *PartitionedRNG) Seed() int64 { return p.seed }

func (p *PartitionedRNG) streamSeed(name string) int64 {
	if name == SubsystemPolicy {
		return p.seed
	}
	return p.seed ^ nameHash(name)
}

// nameHash is FNV-1a over the stream name.
func nameHash(name string) int64 {
	h := fnv.New64a()
	_, _ = io.WriteString(h, name)
	return int64(h.Sum64())
}
