package feed

import (
	"fmt"
	"math/rand"
)

// Batch is the set of records emitted in one tick. ID is the 1-based tick counter.
type Batch struct {
	ID      int64
	Records []Sample
}

// Draw picks size samples from pool uniformly with replacement.
// Duplicates within and across batches are expected.
func Draw(pool *Pool, size int, rng *rand.Rand) ([]Sample, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if pool == nil || pool.Len() == 0 {
		return nil, ErrEmptyPool
	}
	out := make([]Sample, size)
	n := pool.Len()
	for i := range out {
		out[i] = pool.At(rng.Intn(n))
	}
	return out, nil
}
