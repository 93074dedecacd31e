package util

import (
	"math/rand/v2"
	"sync"
)

// Random is a *rand.Rand safe for use across goroutines
type Random struct {
	mutex sync.Mutex
	rand  *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func NewUnseededRandom() *Random {
	return &Random{rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// IntN returns a value in [0,n), n <= 0 always returns 0
func (r *Random) IntN(n int) int {
	if n <= 0 {
		return 0
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.rand.IntN(n)
}

func (r *Random) Float64() float64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.rand.Float64()
}

// Between returns a float in [lower,upper)
func (r *Random) Between(lower float64, upper float64) float64 {
	return lower + r.Float64()*(upper-lower)
}

func Pick[T any](r *Random, values []T) T {
	return values[r.IntN(len(values))]
}
