package feed

import (
	"fmt"
	"math"
	"math/rand"
)

// ArrivalPolicy decides how many records each tick emits.
// The set of implementations is closed: Constant, RandomRange and Increasing.
type ArrivalPolicy interface {
	// Name returns the policy kind as used in run files and flags.
	Name() string
	isArrivalPolicy()
}

// Policy kind names accepted in run files and by the --policy flag.
const (
	PolicyConstant   = "constant"
	PolicyRandom     = "random"
	PolicyIncreasing = "increasing"
)

// Constant emits the same batch size every tick.
type Constant struct {
	size int
}

// NewConstant returns a Constant policy. size must be positive.
func NewConstant(size int) (Constant, error) {
	if size <= 0 {
		return Constant{}, fmt.Errorf("%w: constant size must be positive, got %d", ErrInvalidConfig, size)
	}
	return Constant{size: size}, nil
}

func (Constant) Name() string     { return PolicyConstant }
func (Constant) isArrivalPolicy() {}

// Size returns the configured batch size.
func (c Constant) Size() int { return c.size }

func (c Constant) String() string { return fmt.Sprintf("constant(%d)", c.size) }

// RandomRange draws each tick's size uniformly from [low, high], both ends inclusive.
type RandomRange struct {
	low, high int
}

// NewRandomRange returns a RandomRange policy. Requires 0 < low <= high.
func NewRandomRange(low, high int) (RandomRange, error) {
	if low <= 0 {
		return RandomRange{}, fmt.Errorf("%w: random range low must be positive, got %d", ErrInvalidConfig, low)
	}
	if low > high {
		return RandomRange{}, fmt.Errorf("%w: random range low %d exceeds high %d", ErrInvalidConfig, low, high)
	}
	return RandomRange{low: low, high: high}, nil
}

func (RandomRange) Name() string     { return PolicyRandom }
func (RandomRange) isArrivalPolicy() {}

// Bounds returns the inclusive range.
func (r RandomRange) Bounds() (low, high int) { return r.low, r.high }

func (r RandomRange) String() string { return fmt.Sprintf("random(%d, %d)", r.low, r.high) }

// Increasing grows the batch size by step every tick, starting at step.
type Increasing struct {
	step int
}

// NewIncreasing returns an Increasing policy. step must be positive.
func NewIncreasing(step int) (Increasing, error) {
	if step <= 0 {
		return Increasing{}, fmt.Errorf("%w: increasing step must be positive, got %d", ErrInvalidConfig, step)
	}
	return Increasing{step: step}, nil
}

func (Increasing) Name() string     { return PolicyIncreasing }
func (Increasing) isArrivalPolicy() {}

// Step returns the per-tick increment.
func (i Increasing) Step() int { return i.step }

func (i Increasing) String() string { return fmt.Sprintf("increasing(%d)", i.step) }

// CheckHorizon reports an error when policy cannot size every one of stop
// ticks as a positive int. Only Increasing can fail: its last tick is step*stop.
func CheckHorizon(policy ArrivalPolicy, stop int) error {
	inc, ok := policy.(Increasing)
	if !ok || stop <= 0 {
		return nil
	}
	if inc.step > math.MaxInt/stop {
		return fmt.Errorf("%w: increasing(%d) overflows the batch size before tick %d", ErrInvalidConfig, inc.step, stop)
	}
	return nil
}

// PolicyState is the per-run accumulator threaded through NextSize.
// Only Increasing reads or writes it. The zero value is the start of a run.
type PolicyState struct {
	total int
}

// Total returns the running total accumulated so far.
func (s *PolicyState) Total() int { return s.total }

// NextSize returns the batch size for tick (1-based).
// rng is consulted only by RandomRange, which draws exactly one value.
// Increasing adds its step to state before returning the new total.
func NextSize(policy ArrivalPolicy, tick int, state *PolicyState, rng *rand.Rand) int {
	switch p := policy.(type) {
	case Constant:
		return p.size
	case RandomRange:
		return p.low + rng.Intn(p.high-p.low+1)
	case Increasing:
		state.total += p.step
		return state.total
	default:
		panic(fmt.Sprintf("feed: unknown arrival policy %T at tick %d", policy, tick))
	}
}
