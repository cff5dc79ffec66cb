package matchmaker

import (
	"math/rand/v2"
	"time"
)

// Default selection parameters.
const (
	DefaultExplorationRate = 0.12
	DefaultJitterMin       = 0.9
	DefaultJitterMax       = 1.1
)

// Option configures a Matchmaker.
type Option func(*Matchmaker)

// WithExplorationRate sets the probability of a uniformly random pair.
func WithExplorationRate(rate float64) Option {
	return func(m *Matchmaker) {
		if rate >= 0 && rate <= 1 {
			m.explorationRate = rate
		}
	}
}

// WithJitter sets the bounds of the multiplicative score jitter.
func WithJitter(lo, hi float64) Option {
	return func(m *Matchmaker) {
		if lo > 0 && lo <= hi {
			m.jitterMin, m.jitterMax = lo, hi
		}
	}
}

// WithScale sets the logistic spread used to score pairs.
func WithScale(scale float64) Option {
	return func(m *Matchmaker) {
		if scale > 0 {
			m.scale = scale
		}
	}
}

// WithRand injects the random source.
func WithRand(r Rand) Option {
	return func(m *Matchmaker) {
		if r != nil {
			m.rng = r
		}
	}
}

// WithSeed seeds a PCG source. A zero seed uses the clock.
func WithSeed(seed uint64) Option {
	return func(m *Matchmaker) {
		m.rng = NewRand(seed)
	}
}

// WithIDFunc sets the generator for matchup correlation ids.
func WithIDFunc(fn func() string) Option {
	return func(m *Matchmaker) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewRand returns a PCG-backed Rand. A zero seed uses the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
